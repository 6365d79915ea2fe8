package logging

import (
	"os"
	"strings"

	"github.com/getsentry/sentry-go"
	sentrylogrus "github.com/getsentry/sentry-go/logrus"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/2beens/healthpulse/pkg"
)

const defaultServiceName = "healthpulse"

// LoggerSetupParams controls where and how the global logrus logger writes.
// Empty LogFileName means logging only to stdout.
type LoggerSetupParams struct {
	LogFileName   string
	LogToStdout   bool
	LogLevel      string
	LogFormatJSON bool
	Environment   string
	// ServiceName and Version are added to every log entry and sentry event
	ServiceName string
	Version     string

	SentryEnabled bool
	SentryDSN     string
}

func Setup(params LoggerSetupParams) {
	if params.ServiceName == "" {
		params.ServiceName = defaultServiceName
	}

	if params.LogFormatJSON {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}

	logrus.AddHook(NewServiceFieldsHook(params.ServiceName, params.Version))

	if params.SentryEnabled {
		if hook, err := newSentryHook(params); err != nil {
			logrus.Errorf("sentry setup: %s", err)
		} else {
			logrus.AddHook(hook)
			logrus.Infoln("Sentry set up successfully")
		}
	}

	logrus.SetLevel(GetLevel(params.LogLevel))

	if params.LogFileName == "" {
		logrus.SetOutput(os.Stdout)
		logrus.Println("writing logs only to STDOUT")
		return
	}

	if params.LogToStdout {
		logrus.Println("writing logs to file and STDOUT")
	}

	if !strings.HasSuffix(params.LogFileName, ".log") {
		params.LogFileName += ".log"
	}

	logFile := &lumberjack.Logger{
		Filename:   params.LogFileName,
		MaxSize:    50, // megabytes
		MaxBackups: 30,
		MaxAge:     365, // days
		LocalTime:  false,
		Compress:   true,
	}

	if params.LogToStdout {
		logrus.SetOutput(pkg.NewCombinedWriter(os.Stdout, logFile))
	} else {
		logrus.SetOutput(logFile)
	}
}

// newSentryHook initializes the global sentry client, which is flushed on shutdown,
// and returns a hook forwarding panic, fatal and error entries to it.
func newSentryHook(params LoggerSetupParams) (*sentrylogrus.Hook, error) {
	err := sentry.Init(sentry.ClientOptions{
		Environment:      params.Environment,
		Dsn:              params.SentryDSN,
		TracesSampleRate: 1.0,
		ServerName:       params.ServiceName,
		Release:          params.Version,
	})
	if err != nil {
		return nil, err
	}

	hook := sentrylogrus.NewFromClient([]logrus.Level{
		logrus.PanicLevel,
		logrus.FatalLevel,
		logrus.ErrorLevel,
	}, sentry.CurrentHub().Client())
	// dropped (e.g. sampled out) events are not logging failures
	hook.SetFallback(func(*logrus.Entry) error { return nil })

	return hook, nil
}

// ServiceFieldsHook adds the service name and version to every entry.
type ServiceFieldsHook struct {
	service string
	version string
}

var _ logrus.Hook = (*ServiceFieldsHook)(nil)

func NewServiceFieldsHook(service, version string) *ServiceFieldsHook {
	return &ServiceFieldsHook{
		service: service,
		version: version,
	}
}

func (h *ServiceFieldsHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *ServiceFieldsHook) Fire(entry *logrus.Entry) error {
	if _, ok := entry.Data["service"]; !ok {
		entry.Data["service"] = h.service
	}
	if h.version != "" {
		if _, ok := entry.Data["version"]; !ok {
			entry.Data["version"] = h.version
		}
	}
	return nil
}

// GetLevel maps the config level name to logrus level, defaulting to trace.
func GetLevel(level string) logrus.Level {
	switch strings.ToLower(level) {
	case "debug":
		return logrus.DebugLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "info":
		return logrus.InfoLevel
	case "trace":
		return logrus.TraceLevel
	case "warn":
		return logrus.WarnLevel
	default:
		return logrus.TraceLevel
	}
}
