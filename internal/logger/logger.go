package logger

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

// EnvVar holds the log filter, eg: "warn", "fulcrum=debug", "info,dashboard=warn"
const EnvVar = "NODEHOME_LOG"

func newLogger() *zap.SugaredLogger {
	cfg := zap.NewDevelopmentConfig()
	cfg.Encoding = "module"
	cfg.DisableStacktrace = true
	_ = zap.RegisterEncoder("module", newModuleEncoder)
	// levels are filtered by the encoder, so let everything through here
	cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	logger, _ := cfg.Build()
	return logger.Sugar()
}

var (
	Logger = newLogger()
	Debugw = Logger.Debugw
	Infow  = Logger.Infow
	Warnw  = Logger.Warnw
)

func stringToLevel(str string) (zapcore.Level, bool) {
	for _, lvl := range []zapcore.Level{
		zapcore.DebugLevel,
		zapcore.InfoLevel,
		zapcore.WarnLevel,
		zapcore.ErrorLevel,
		zapcore.PanicLevel,
		zapcore.FatalLevel} {
		if str == lvl.String() {
			return lvl, true
		}
	}
	if str == "off" {
		return zapcore.FatalLevel + 1, true
	}
	return 0, false
}

func newModuleEncoder(cfg zapcore.EncoderConfig) (zapcore.Encoder, error) {
	return parseFilter(zapcore.NewConsoleEncoder(cfg), os.Getenv(EnvVar)), nil
}

func parseFilter(enc zapcore.Encoder, val string) moduleEncoder {
	me := moduleEncoder{
		Encoder: enc,
		level:   zapcore.InfoLevel,
		modules: map[string]zapcore.Level{},
	}
	if val == "" {
		return me
	}
	for _, match := range strings.Split(strings.ToLower(val), ",") {
		match = strings.TrimSpace(match)
		lvl, found := stringToLevel(match)
		switch {
		case match == "":
		case found:
			me.level = lvl
		case !strings.Contains(match, "="): // a bare package name turns on debug for it
			me.modules[match] = zapcore.DebugLevel
		default:
			parts := strings.Split(match, "=")
			if len(parts) == 2 {
				if lvl, found := stringToLevel(parts[1]); found {
					me.modules[parts[0]] = lvl
				}
			}
		}
	}
	return me
}

// moduleEncoder drops entries below the level configured for the package
// that logged them.
type moduleEncoder struct {
	zapcore.Encoder
	level   zapcore.Level
	modules map[string]zapcore.Level
}

func (me moduleEncoder) Clone() zapcore.Encoder {
	return moduleEncoder{Encoder: me.Encoder.Clone(), level: me.level, modules: me.modules}
}

func (me moduleEncoder) effectiveLevel(caller zapcore.EntryCaller) zapcore.Level {
	path := caller.TrimmedPath()
	if idx := strings.IndexRune(path, '/'); idx > 0 {
		if lvl, found := me.modules[path[:idx]]; found {
			return lvl
		}
	}
	return me.level
}

func (me moduleEncoder) EncodeEntry(entry zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	line, err := me.Encoder.EncodeEntry(entry, fields)
	if entry.Level < me.effectiveLevel(entry.Caller) {
		line.Reset()
	}
	return line, err
}

func Print(a ...interface{}) {
	fmt.Fprintln(os.Stderr, a...)
}

