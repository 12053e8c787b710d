package monitor

import (
	"github.com/tidwall/sjson"
)

// document builds a JSON value with sjson and keeps the first write error.
type document struct {
	raw string
	err error
}

func newDocument(raw string) *document {
	return &document{raw: raw}
}

func (d *document) set(path string, v any) {
	if d.err != nil {
		return
	}
	raw, err := sjson.Set(d.raw, path, v)
	if err != nil {
		d.err = err
		return
	}
	d.raw = raw
}

func (d *document) setRaw(path, raw string) {
	if d.err != nil {
		return
	}
	out, err := sjson.SetRaw(d.raw, path, raw)
	if err != nil {
		d.err = err
		return
	}
	d.raw = out
}

func (d *document) result() (string, error) {
	if d.err != nil {
		return "", d.err
	}
	return d.raw, nil
}
