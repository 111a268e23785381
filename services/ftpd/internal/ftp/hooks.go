package ftp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"path"
	"path/filepath"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"goftp.io/server/v2"

	"bptools/services/ftpd/internal/auth"
	"bptools/services/ftpd/internal/ingest"
)

var (
	loginsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bptools",
		Subsystem: "ftp",
		Name:      "logins_total",
		Help:      "FTP login attempts, by result.",
	}, []string{"result"})

	errReadOnly = errors.New("permission denied: read-only session")
)

type authHook struct {
	auth           *auth.Authenticator
	allowAnonymous bool
	logger         *log.Logger
}

func (h *authHook) CheckPasswd(_ *server.Context, username, password string) (bool, error) {
	if isAnonymous(username) {
		if !h.allowAnonymous {
			loginsTotal.WithLabelValues("anonymous_refused").Inc()
			return false, nil
		}
		loginsTotal.WithLabelValues("anonymous").Inc()
		return true, nil
	}

	result := h.auth.Authenticate(username, password)
	if !result.OK {
		loginsTotal.WithLabelValues("refused").Inc()
		if result.Err != nil {
			h.logger.Printf("WARN login refused for %q: %s: %v", username, result.Reason, result.Err)
		} else {
			h.logger.Printf("WARN login refused for %q: %s", username, result.Reason)
		}
		return false, nil
	}
	loginsTotal.WithLabelValues("accepted").Inc()
	return true, nil
}

func isAnonymous(username string) bool {
	switch strings.ToLower(username) {
	case "anonymous", "ftp":
		return true
	default:
		return false
	}
}

// permDriver grants write access to the owner account only.
type permDriver struct {
	server.Driver
	owner  string
	userOf func(*server.Context) string
}

func newPermDriver(base server.Driver, owner string) *permDriver {
	return &permDriver{Driver: base, owner: owner, userOf: sessionUser}
}

func sessionUser(ctx *server.Context) string {
	if ctx == nil || ctx.Sess == nil {
		return ""
	}
	return ctx.Sess.LoginUser()
}

func (d *permDriver) writable(ctx *server.Context) error {
	if d.userOf(ctx) != d.owner {
		return errReadOnly
	}
	return nil
}

func (d *permDriver) DeleteDir(ctx *server.Context, p string) error {
	if err := d.writable(ctx); err != nil {
		return err
	}
	return d.Driver.DeleteDir(ctx, p)
}

func (d *permDriver) DeleteFile(ctx *server.Context, p string) error {
	if err := d.writable(ctx); err != nil {
		return err
	}
	return d.Driver.DeleteFile(ctx, p)
}

func (d *permDriver) Rename(ctx *server.Context, from, to string) error {
	if err := d.writable(ctx); err != nil {
		return err
	}
	return d.Driver.Rename(ctx, from, to)
}

func (d *permDriver) MakeDir(ctx *server.Context, p string) error {
	if err := d.writable(ctx); err != nil {
		return err
	}
	return d.Driver.MakeDir(ctx, p)
}

func (d *permDriver) PutFile(ctx *server.Context, p string, data io.Reader, offset int64) (int64, error) {
	if err := d.writable(ctx); err != nil {
		return 0, err
	}
	return d.Driver.PutFile(ctx, p, data, offset)
}

// uploadNotifier hands every completed upload to the ingest handler.
type uploadNotifier struct {
	server.NullNotifier

	ctx     context.Context
	root    string
	handler *ingest.Handler
	logger  *log.Logger
}

func newUploadNotifier(ctx context.Context, root string, handler *ingest.Handler, logger *log.Logger) *uploadNotifier {
	return &uploadNotifier{ctx: ctx, root: root, handler: handler, logger: logger}
}

func (n *uploadNotifier) AfterFilePut(_ *server.Context, dstPath string, size int64, err error) {
	if err != nil {
		n.logger.Printf("WARN upload of %s failed: %v", dstPath, err)
		return
	}
	local := localPath(n.root, dstPath)
	n.logger.Printf("DEBUG received %s (%d bytes)", dstPath, size)
	if _, err := n.handler.Handle(n.ctx, local); err != nil {
		n.logger.Printf("ERROR ingest %s: %v", dstPath, err)
	}
}

func localPath(root, ftpPath string) string {
	cleaned := path.Clean("/" + ftpPath)
	return filepath.Join(root, filepath.FromSlash(cleaned))
}

// sessionLogger routes protocol chatter to the service logger; commands and responses
// are only logged in verbose mode.
type sessionLogger struct {
	logger  *log.Logger
	verbose bool
}

func (l *sessionLogger) Print(sessionID string, message interface{}) {
	l.logger.Printf("INFO ftp session %s: %v", sessionID, message)
}

func (l *sessionLogger) Printf(sessionID string, format string, v ...interface{}) {
	l.logger.Printf("INFO ftp session %s: %s", sessionID, fmt.Sprintf(format, v...))
}

func (l *sessionLogger) PrintCommand(sessionID string, command string, params string) {
	if !l.verbose {
		return
	}
	if strings.EqualFold(command, "PASS") {
		params = "****"
	}
	l.logger.Printf("DEBUG ftp session %s > %s %s", sessionID, command, params)
}

func (l *sessionLogger) PrintResponse(sessionID string, code int, message string) {
	if !l.verbose {
		return
	}
	l.logger.Printf("DEBUG ftp session %s < %d %s", sessionID, code, message)
}
