package bootstrap

import (
	"strconv"
	"strings"
)

// Option identifies a configuration entry attached with WithOption.
// Two options are the same key when their OptionName is equal.
type Option interface {
	OptionName() string
}

type optionEntry struct {
	opt   Option
	value any
}

// Options is an immutable, insertion-ordered set of option values.
// The zero value is empty and ready to use.
type Options struct {
	entries []optionEntry
}

// With returns a copy of o with opt set to value.  An existing entry
// for the same key keeps its position and takes the new value.
func (o Options) With(opt Option, value any) Options {
	name := opt.OptionName()
	entries := make([]optionEntry, len(o.entries), len(o.entries)+1)
	copy(entries, o.entries)
	for i := range entries {
		if entries[i].opt.OptionName() == name {
			entries[i] = optionEntry{opt: opt, value: value}
			return Options{entries: entries}
		}
	}
	return Options{entries: append(entries, optionEntry{opt: opt, value: value})}
}

// Lookup returns the value stored for opt.
func (o Options) Lookup(opt Option) (any, bool) {
	name := opt.OptionName()
	for _, e := range o.entries {
		if e.opt.OptionName() == name {
			return e.value, true
		}
	}
	return nil, false
}

// Get returns the value stored for opt, or nil.
func (o Options) Get(opt Option) any {
	v, _ := o.Lookup(opt)
	return v
}

// Len returns the number of distinct options.
func (o Options) Len() int { return len(o.entries) }

// Each calls fn for every entry in insertion order.
func (o Options) Each(fn func(opt Option, value any)) {
	for _, e := range o.entries {
		fn(e.opt, e.value)
	}
}

// Int returns the value of opt as an int.  Booleans map to 0/1 and
// numeric strings are parsed; ok is false for anything else.
func (o Options) Int(opt Option) (v int, ok bool) {
	raw, found := o.Lookup(opt)
	if !found {
		return 0, false
	}
	return IntValue(raw)
}

// Bool returns the value of opt as a bool.
func (o Options) Bool(opt Option) (v bool, ok bool) {
	raw, found := o.Lookup(opt)
	if !found {
		return false, false
	}
	switch vv := raw.(type) {
	case bool:
		return vv, true
	case int:
		return vv != 0, true
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(vv))
		return b, err == nil
	}
	return false, false
}

// IntValue converts an option value to an int using the same rules as
// Options.Int.
func IntValue(raw any) (int, bool) {
	switch vv := raw.(type) {
	case int:
		return vv, true
	case int32:
		return int(vv), true
	case int64:
		return int(vv), true
	case uint:
		return int(vv), true
	case bool:
		if vv {
			return 1, true
		}
		return 0, true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(vv))
		return n, err == nil
	}
	return 0, false
}
