package internal

import (
	"os"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogOptions はロガーの設定
type LogOptions struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"` // console or json
	File       string `yaml:"file"`   // 空ならstderr
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

var (
	logger    atomic.Pointer[zap.Logger]
	nopLogger = zap.NewNop()
)

// Logger はパッケージ共通のロガーを返す
func Logger() *zap.Logger {
	if l := logger.Load(); l != nil {
		return l
	}
	return nopLogger
}

// SetLogger はパッケージ共通のロガーを差し替える
func SetLogger(l *zap.Logger) {
	logger.Store(l)
}

// SetupLogger はzapロガーを構築し、パッケージ共通およびグローバルロガーとして設定する
// 呼び出し側でSync()を呼ぶこと
func SetupLogger(opts LogOptions) (*zap.Logger, error) {
	level := zap.NewAtomicLevel()
	switch strings.ToLower(opts.Level) {
	case "debug":
		level.SetLevel(zap.DebugLevel)
	case "warn", "warning":
		level.SetLevel(zap.WarnLevel)
	case "error":
		level.SetLevel(zap.ErrorLevel)
	default:
		level.SetLevel(zap.InfoLevel)
	}
	if DebugMode {
		level.SetLevel(zap.DebugLevel)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	var encoder zapcore.Encoder
	if strings.ToLower(opts.Format) == "json" {
		encoder = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encCfg)
	}

	// 標準出力は映像データ用なのでログは必ずstderrかファイルへ
	var ws zapcore.WriteSyncer
	if opts.File == "" {
		ws = zapcore.Lock(zapcore.AddSync(os.Stderr))
	} else {
		ws = zapcore.AddSync(&lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    max(opts.MaxSizeMB, 10),
			MaxBackups: max(opts.MaxBackups, 1),
			MaxAge:     max(opts.MaxAgeDays, 7),
			Compress:   opts.Compress,
		})
	}

	l := zap.New(zapcore.NewCore(encoder, ws, level), zap.AddCaller(), zap.AddStacktrace(zap.ErrorLevel))
	zap.ReplaceGlobals(l)
	SetLogger(l)
	return l, nil
}
