package ftp

import (
	"log"
	"sync/atomic"

	"bptools/services/ftpd/internal/auth"
	"bptools/services/ftpd/internal/config"
	"bptools/services/ftpd/internal/ingest"
)

type Server struct {
	cfg     config.FTPConfig
	root    string
	auth    *auth.Authenticator
	handler *ingest.Handler
	logger  *log.Logger
	verbose bool
	addr    atomic.Value
}
