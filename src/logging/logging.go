package logging

import (
	"encoding/json"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	color "github.com/eduverse-labs/eduverse/src/ansicolor"
	"github.com/eduverse-labs/eduverse/src/config"
	"github.com/eduverse-labs/eduverse/src/oops"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func init() {
	zerolog.ErrorStackMarshaler = oops.ZerologStackMarshaler
	Setup(os.Stderr, config.Config.LogFormat, config.Config.LogLevel)
}

// Setup points the global logger at out. Any format other than "json" gets
// the pretty writer.
func Setup(out io.Writer, format string, level zerolog.Level) {
	if format == "json" {
		log.Logger = log.Output(out)
	} else {
		log.Logger = log.Output(NewPrettyZerologWriterTo(out))
	}
	zerolog.SetGlobalLevel(level)
}

func GlobalLogger() *zerolog.Logger {
	return &log.Logger
}

func Trace() *zerolog.Event {
	return log.Trace().Timestamp().Stack()
}

func Debug() *zerolog.Event {
	return log.Debug().Timestamp().Stack()
}

func Info() *zerolog.Event {
	return log.Info().Timestamp().Stack()
}

func Warn() *zerolog.Event {
	return log.Warn().Timestamp().Stack()
}

func Error() *zerolog.Event {
	return log.Error().Timestamp().Stack()
}

func Fatal() *zerolog.Event {
	return log.Fatal().Timestamp().Stack()
}

func With() zerolog.Context {
	return log.With().Stack()
}

// PrettyZerologWriter turns zerolog's JSON lines into something readable
// in a terminal. Anything that isn't JSON is passed through untouched.
type PrettyZerologWriter struct {
	out       io.Writer
	wd        string
	lastBlock bool
}

type PrettyLogEntry struct {
	Timestamp string
	Level     string
	Message   string
	Error     string
	Stack     []StackLine

	// Job and Module are shown in the header line instead of with the
	// other fields.
	Job    string
	Module string

	Fields []PrettyField
}

type PrettyField struct {
	Name  string
	Value any
}

type StackLine struct {
	Function string
	File     string
	Line     int
}

// A multi-line entry is printed as a block set off by a rule.
func (e *PrettyLogEntry) isBlock() bool {
	return e.Error != "" || len(e.Stack) > 0 || len(e.Fields) > 0
}

var ColorFromLevel = map[string]string{
	"trace": color.Gray,
	"debug": color.Gray,
	"info":  color.BgBlue,
	"warn":  color.BgYellow,
	"error": color.BgRed,
	"fatal": color.BgRed,
	"panic": color.BgRed,
}

func NewPrettyZerologWriterTo(out io.Writer) *PrettyZerologWriter {
	wd, _ := os.Getwd()
	return &PrettyZerologWriter{
		out: out,
		wd:  wd,
	}
}

func (w *PrettyZerologWriter) Write(p []byte) (int, error) {
	entry, ok := w.parse(p)
	if !ok {
		return w.out.Write(p)
	}

	text := w.render(entry)
	w.lastBlock = entry.isBlock()
	if _, err := io.WriteString(w.out, text); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *PrettyZerologWriter) parse(p []byte) (PrettyLogEntry, bool) {
	var raw map[string]any
	if err := json.Unmarshal(p, &raw); err != nil {
		return PrettyLogEntry{}, false
	}

	var entry PrettyLogEntry
	str := func(v any) string {
		s, _ := v.(string)
		return s
	}
	for name, val := range raw {
		switch name {
		case zerolog.TimestampFieldName:
			entry.Timestamp = str(val)
		case zerolog.LevelFieldName:
			entry.Level = str(val)
		case zerolog.MessageFieldName:
			entry.Message = str(val)
		case zerolog.ErrorFieldName:
			entry.Error = str(val)
		case zerolog.ErrorStackFieldName:
			entry.Stack = w.stackLines(val)
		case "job":
			entry.Job = str(val)
		case "module":
			entry.Module = str(val)
		default:
			entry.Fields = append(entry.Fields, PrettyField{Name: name, Value: val})
		}
	}
	sort.Slice(entry.Fields, func(i, j int) bool {
		return entry.Fields[i].Name < entry.Fields[j].Name
	})
	return entry, true
}

func (w *PrettyZerologWriter) stackLines(val any) []StackLine {
	frames, _ := val.([]any)
	lines := make([]StackLine, 0, len(frames))
	for _, frame := range frames {
		m, ok := frame.(map[string]any)
		if !ok {
			continue
		}
		var line StackLine
		line.Function, _ = m["function"].(string)
		line.File, _ = m["file"].(string)
		if n, ok := m["line"].(float64); ok {
			line.Line = int(n)
		}
		if w.wd != "" {
			line.File = strings.Replace(line.File, w.wd, ".", 1)
		}
		lines = append(lines, line)
	}
	return lines
}

func heading(title string) string {
	return "  " + color.Bold + color.Blue + title + color.Reset + "\n"
}

func (w *PrettyZerologWriter) render(e PrettyLogEntry) string {
	var b strings.Builder
	if e.isBlock() || w.lastBlock {
		b.WriteString("---------------------------------------\n")
	}

	b.WriteString(e.Timestamp + " ")
	if e.Level != "" {
		b.WriteString(ColorFromLevel[e.Level] + color.Bold + strings.ToUpper(e.Level) + color.Reset + ": ")
	}
	for _, tag := range []string{e.Job, e.Module} {
		if tag != "" {
			b.WriteString(color.Gray + "[" + tag + "]" + color.Reset + " ")
		}
	}
	b.WriteString(e.Message + "\n")

	if e.Error != "" {
		b.WriteString("  " + color.Bold + color.Red + "ERROR:" + color.Reset + " " + e.Error + "\n")
	}
	if len(e.Fields) > 0 {
		b.WriteString(heading("Fields:"))
		for _, f := range e.Fields {
			value, _ := json.MarshalIndent(f.Value, "    ", "  ")
			b.WriteString("    " + f.Name + ": " + string(value) + "\n")
		}
	}
	if len(e.Stack) > 0 {
		b.WriteString(heading("Stack trace:"))
		for _, l := range e.Stack {
			b.WriteString("    " + l.Function + " (" + l.File + ":" + strconv.Itoa(l.Line) + ")\n")
		}
	}
	return b.String()
}

func LogPanics(logger *zerolog.Logger) {
	if r := recover(); r != nil {
		LogPanicValue(logger, r, "recovered from panic")
	}
}

func LogPanicValue(logger *zerolog.Logger, val any, msg string) {
	if logger == nil {
		logger = GlobalLogger()
	}

	if err, ok := val.(error); ok {
		l := logger.Error().Err(err)
		if oops.StackOf(err) == nil {
			l = l.Interface(zerolog.ErrorStackFieldName, oops.Trace())
		}
		l.Msg(msg)
	} else {
		logger.Error().
			Interface("recovered", val).
			Interface(zerolog.ErrorStackFieldName, oops.Trace()).
			Msg(msg)
	}
}
