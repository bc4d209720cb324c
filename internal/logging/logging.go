package logging

import (
	"log"
	"os"
)

func New() *log.Logger {
	return log.New(os.Stdout, "globalping-probe ", log.LstdFlags|log.LUTC)
}
