// Package logsvc implements core.Logger: zap for structured output, Rollbar for error tracking.
package logsvc

import (
	"github.com/rollbar/rollbar-go"
	rollbarerrors "github.com/rollbar/rollbar-go/errors"
	"go.uber.org/zap"

	"github.com/trezcool/campus/core"
	"github.com/trezcool/campus/core/user"
)

type RollbarLogger struct {
	zap     *zap.Logger
	enabled bool
}

var _ core.Logger = (*RollbarLogger)(nil)

// NewRollbarLogger writes every entry to zl and reports it to Rollbar when a token is configured.
func NewRollbarLogger(zl *zap.Logger, conf *core.Config) *RollbarLogger {
	enabled := conf.RollbarToken != "" && !conf.TestMode
	rollbar.SetToken(conf.RollbarToken)
	rollbar.SetEnvironment(conf.Env)
	rollbar.SetServerHost(conf.Server.Host)
	rollbar.SetCodeVersion(conf.Build)
	rollbar.SetStackTracer(rollbarerrors.StackTracer)
	rollbar.SetEnabled(enabled)
	return &RollbarLogger{zap: zl, enabled: enabled}
}

// NewTestLogger discards everything.
func NewTestLogger() *RollbarLogger {
	return &RollbarLogger{zap: zap.NewNop()}
}

func (l *RollbarLogger) Enable(enabled bool) {
	l.enabled = enabled
	rollbar.SetEnabled(enabled)
}

func asUser(arg interface{}) (user.User, bool) {
	switch u := arg.(type) {
	case user.User:
		return u, true
	case *user.User:
		if u != nil {
			return *u, true
		}
	}
	return user.User{}, false
}

// expected fmt: msg | error, map[string]interface{}, user.User
func (l *RollbarLogger) prepare(msg string, args []interface{}) []interface{} {
	var usrSet bool
	newArgs := make([]interface{}, 0, len(args)+1)
	newArgs = append(newArgs, msg)
	for _, arg := range args {
		// set logged in User
		if usr, ok := asUser(arg); ok {
			if !usrSet { // only set one User
				rollbar.SetPerson(usr.ID, usr.Name, usr.Email)
				usrSet = true
			}
		} else {
			newArgs = append(newArgs, arg)
		}
	}
	if !usrSet {
		rollbar.ClearPerson()
	}
	return newArgs
}

func (l *RollbarLogger) report(level string, msg string, args []interface{}) {
	if !l.enabled {
		return
	}
	prepared := l.prepare(msg, args)
	switch level {
	case rollbar.DEBUG:
		rollbar.Debug(prepared...)
	case rollbar.INFO:
		rollbar.Info(prepared...)
	case rollbar.WARN:
		rollbar.Warning(prepared...)
	case rollbar.ERR:
		rollbar.Error(prepared...)
	default:
		rollbar.Critical(prepared...)
	}
}

func (l *RollbarLogger) Debug(msg string, args ...interface{}) {
	l.zap.Debug(msg, fields(args)...)
}

func (l *RollbarLogger) Info(msg string, args ...interface{}) {
	l.zap.Info(msg, fields(args)...)
}

func (l *RollbarLogger) Warn(msg string, args ...interface{}) {
	l.report(rollbar.WARN, msg, args)
	l.zap.Warn(msg, fields(args)...)
}

func (l *RollbarLogger) Error(msg string, args ...interface{}) {
	l.report(rollbar.ERR, msg, args)
	l.zap.Error(msg, fields(args)...)
}

func (l *RollbarLogger) Fatal(msg string, args ...interface{}) {
	l.report(rollbar.CRIT, msg, args)
	rollbar.Wait()
	l.zap.Fatal(msg, fields(args)...)
}

// Sync flushes buffered entries.
func (l *RollbarLogger) Sync() {
	_ = l.zap.Sync()
	if l.enabled {
		rollbar.Wait()
	}
}
