package mock

import "github.com/fwojciec/sigmatch"

var _ sigmatch.Converter = (*Converter)(nil)

// Converter is a mock implementation of sigmatch.Converter.
type Converter struct {
	ConvertFn func(html string) (string, error)
}

func (c *Converter) Convert(html string) (string, error) {
	return c.ConvertFn(html)
}
