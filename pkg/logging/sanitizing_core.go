package logging

import "go.uber.org/zap/zapcore"

// sanitizingCore wraps a zapcore.Core and redacts secrets out of every log
// line before it reaches the wrapped core's encoder, so DSNs and query
// literals passed to zap.String/zap.Error never land in a log sink
// unredacted, however deep in the call stack the field was attached.
type sanitizingCore struct {
	zapcore.Core
}

// wrapSanitizing returns core wrapped in a sanitizingCore.
func wrapSanitizing(core zapcore.Core) zapcore.Core {
	return &sanitizingCore{Core: core}
}

func (c *sanitizingCore) With(fields []zapcore.Field) zapcore.Core {
	return &sanitizingCore{Core: c.Core.With(sanitizeFields(fields))}
}

func (c *sanitizingCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Core.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *sanitizingCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	ent.Message = sanitizeText(ent.Message)
	return c.Core.Write(ent, sanitizeFields(fields))
}

// sanitizeFields redacts every string-valued or error-valued field,
// leaving numeric/bool/duration fields untouched.
func sanitizeFields(fields []zapcore.Field) []zapcore.Field {
	out := make([]zapcore.Field, len(fields))
	for i, f := range fields {
		switch f.Type {
		case zapcore.StringType:
			f.String = sanitizeText(f.String)
		case zapcore.ErrorType:
			if err, ok := f.Interface.(error); ok {
				f.Interface = sanitizedError{msg: SanitizeError(err)}
			}
		}
		out[i] = f
	}
	return out
}

// sanitizedError substitutes for the original error in a log field only,
// so the redacted text is what an encoder renders while the original error
// value returned to callers elsewhere is never mutated.
type sanitizedError struct{ msg string }

func (e sanitizedError) Error() string { return e.msg }
