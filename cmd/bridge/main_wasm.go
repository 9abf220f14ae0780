//go:build js && wasm

package main

import (
	"encoding/json"
	"syscall/js"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jun/brickmap/internal/apierr"
	"github.com/jun/brickmap/internal/records"
)

// decode turns a JS value into the shapes apierr.Message understands.
func decode(v js.Value) any {
	switch v.Type() {
	case js.TypeUndefined, js.TypeNull:
		return nil
	case js.TypeString:
		return v.String()
	case js.TypeObject:
		raw := js.Global().Get("JSON").Call("stringify", v).String()
		var m map[string]any
		if err := json.Unmarshal([]byte(raw), &m); err == nil && len(m) > 0 {
			return m
		}
		// Error instances stringify to {}.
		if msg := v.Get("message"); msg.Type() == js.TypeString {
			return map[string]any{"message": msg.String()}
		}
		return v.Call("toString").String()
	default:
		return js.Global().Call("String", v).String()
	}
}

func main() {
	// format: normalizeError(value) -> string
	normalizeFunc := js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		if len(args) != 1 {
			return apierr.Message(nil)
		}
		return apierr.Message(decode(args[0]))
	})

	// format: newRecordId() -> string
	newIDFunc := js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		return records.NewID(time.Now(), nil)
	})

	// format: formatCreatedAt(epochMillis) -> string
	createdAtFunc := js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		if len(args) != 1 || args[0].Type() != js.TypeNumber {
			return records.FormatCreatedAt(time.Now())
		}
		return records.FormatCreatedAt(time.UnixMilli(int64(args[0].Float())))
	})

	js.Global().Set("normalizeError", normalizeFunc)
	js.Global().Set("newRecordId", newIDFunc)
	js.Global().Set("formatCreatedAt", createdAtFunc)

	log.Info().Msg("BrickMap wasm bridge initialized")

	// Returning would exit the module.
	select {}
}
