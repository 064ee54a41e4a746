// Copyright (c) Neurosense Labs.
// Licensed under the MIT License.
package biostream

import (
	"context"
	"log/slog"
	"reflect"

	"github.com/iancoleman/strcase"

	"github.com/neurosense/biostream/frame"
	"github.com/neurosense/biostream/internal/log"
)

type logger struct{ log.Logger }

func newLogger(l *slog.Logger) logger {
	return logger{log.Wrap(l)}
}

// Frame logs a decoded frame at debug level with structured attributes.
func (l logger) Frame(ctx context.Context, name string, f *frame.Frame) {
	// This is expensive; bail out if we don't need it.
	if !l.Enabled(ctx, slog.LevelDebug) {
		return
	}

	val := reflect.ValueOf(f)
	for val.Kind() == reflect.Pointer {
		val = val.Elem()
	}
	if val.Kind() == reflect.Invalid {
		l.Log(ctx, slog.LevelWarn, name+" not available")
		return
	}
	l.Log(ctx, slog.LevelDebug, name, reflectAttrs(val)...)
}

func reflectAttrs(val reflect.Value) []slog.Attr {
	typ := val.Type()
	var attrs []slog.Attr
	for i := range typ.NumField() {
		f := typ.Field(i)
		if !f.IsExported() {
			continue
		}

		attrs = append(attrs, reflectAttr(
			strcase.ToSnake(f.Name),
			val.Field(i),
		)...)
	}
	return attrs
}

func reflectAttr(name string, val reflect.Value) []slog.Attr {
	// Ignore zero values to keep the log cleaner.
	if val.Kind() == reflect.Invalid || val.IsZero() {
		return nil
	}

	// Sample data is bulky; log the shape, not the values.
	if name == "channels" {
		if chs, ok := val.Interface().([][]float64); ok {
			lengths := make([]int, len(chs))
			for i, ch := range chs {
				lengths[i] = len(ch)
			}
			return []slog.Attr{
				slog.Int("channel_count", len(chs)),
				slog.Any("channel_lengths", lengths),
			}
		}
	}

	return []slog.Attr{slog.Any(name, val.Interface())}
}
