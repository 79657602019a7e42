package logsvc

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/trezcool/campus/core"
)

// NewZap builds the structured logger described by conf.Log.
func NewZap(conf *core.Config) (*zap.Logger, error) {
	var zapConf zap.Config
	switch conf.Log.Format {
	case "json":
		zapConf = zap.NewProductionConfig()
	default:
		zapConf = zap.NewDevelopmentConfig()
		zapConf.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	level, err := zapcore.ParseLevel(conf.Log.Level)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid log level %q", conf.Log.Level)
	}
	zapConf.Level = zap.NewAtomicLevelAt(level)
	zapConf.InitialFields = map[string]interface{}{"app": conf.AppName, "env": conf.Env}

	logger, err := zapConf.Build(zap.AddCallerSkip(2))
	if err != nil {
		return nil, errors.Wrap(err, "building logger")
	}
	return logger, nil
}

// fields converts logger args into zap fields.
// expected fmt: error | map[string]interface{} | user.User | anything else
func fields(args []interface{}) []zap.Field {
	flds := make([]zap.Field, 0, len(args))
	for _, arg := range args {
		switch a := arg.(type) {
		case nil:
		case error:
			flds = append(flds, zap.Error(a))
		case map[string]interface{}:
			for k, v := range a {
				flds = append(flds, zap.Any(k, v))
			}
		default:
			if usr, ok := asUser(a); ok {
				flds = append(flds, zap.String("user_id", usr.ID))
				continue
			}
			flds = append(flds, zap.Any("arg", a))
		}
	}
	return flds
}
