// Package logger expone el logger estructurado del servicio: un envoltorio
// fino sobre zerolog que las capas reciben por inyección en lugar de usar el
// paquete global.
package logger

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// EnvDevelopment activa la salida de consola legible. Cualquier otro entorno
// emite una línea JSON por evento.
const EnvDevelopment = "development"

// Config parámetros del logger, normalmente tomados de la configuración.
type Config struct {
	Env   string
	Level string // trace | debug | info | warn | error; info si no se reconoce
}

// Logger envuelve un zerolog.Logger con el nivel y la salida ya resueltos.
type Logger struct {
	zl zerolog.Logger
}

// New construye el logger del proceso. También lo fija como logger global de
// zerolog para las librerías que escriben a través de él.
func New(cfg Config) *Logger {
	var out io.Writer = os.Stdout
	if cfg.Env == EnvDevelopment {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"}
	}

	zl := zerolog.New(out).Level(levelFrom(cfg.Level)).With().Timestamp().Logger()
	log.Logger = zl
	return &Logger{zl: zl}
}

// levelFrom traduce el nivel configurado; los valores desconocidos caen a info.
func levelFrom(s string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// Eventos por nivel, delegados al zerolog interno.

func (l *Logger) Trace() *zerolog.Event { return l.zl.Trace() }
func (l *Logger) Debug() *zerolog.Event { return l.zl.Debug() }
func (l *Logger) Info() *zerolog.Event  { return l.zl.Info() }
func (l *Logger) Warn() *zerolog.Event  { return l.zl.Warn() }
func (l *Logger) Error() *zerolog.Event { return l.zl.Error() }
func (l *Logger) Fatal() *zerolog.Event { return l.zl.Fatal() }

// With abre un contexto para derivar un sublogger con campos fijos.
func (l *Logger) With() zerolog.Context { return l.zl.With() }

// Zerolog devuelve el logger interno para integraciones que piden el tipo.
func (l *Logger) Zerolog() zerolog.Logger { return l.zl }
