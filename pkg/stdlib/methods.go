package stdlib

import (
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/lemonberrylabs/oida/pkg/types"
)

// registerInspection registers the read-only inspection methods:
// umfang, numma, gibts, isText, isArray, isNumma, keinArray.
func (r *Registry) registerInspection() {
	r.Register(Method{Name: "umfang", Fn: methodLength})
	r.Register(Method{Name: "numma", Fn: methodLength})
	r.Register(Method{Name: "gibts", TakesArg: true, Fn: methodContains})
	r.Register(Method{Name: "isText", Fn: func(c *Call) (types.Value, error) {
		return types.NewBool(c.Receiver.Type() == types.TypeString), nil
	}})
	r.Register(Method{Name: "isArray", Fn: func(c *Call) (types.Value, error) {
		return types.NewBool(c.Receiver.IsCollection()), nil
	}})
	r.Register(Method{Name: "keinArray", Fn: func(c *Call) (types.Value, error) {
		return types.NewBool(!c.Receiver.IsCollection()), nil
	}})
	r.Register(Method{Name: "isNumma", Fn: func(c *Call) (types.Value, error) {
		return types.NewBool(c.Receiver.IsNumber()), nil
	}})
}

// registerCollection registers the collection methods:
// ausse, nimmIrgendwas, ane, ordne.
func (r *Registry) registerCollection() {
	r.Register(Method{Name: "ausse", TakesArg: true, Fn: methodSliceFrom})
	r.Register(Method{Name: "nimmIrgendwas", Fn: methodRandom})
	r.Register(Method{Name: "ane", TakesArg: true, StoreBack: true, Fn: methodPush})
	r.Register(Method{Name: "ordne", StoreBack: true, Fn: methodSort})
}

// registerConversion registers zuText and zuNumma.
func (r *Registry) registerConversion() {
	r.Register(Method{Name: "zuText", Fn: methodToText})
	r.Register(Method{Name: "zuNumma", Fn: methodToNumber})
}

func methodLength(c *Call) (types.Value, error) {
	switch c.Receiver.Type() {
	case types.TypeString:
		return types.NewInt(int64(utf8.RuneCountInString(c.Receiver.AsString()))), nil
	case types.TypeList:
		return types.NewInt(int64(len(c.Receiver.AsList()))), nil
	case types.TypeMap:
		return types.NewInt(int64(c.Receiver.AsMap().Len())), nil
	default:
		return types.Null, types.NewTypeError(".%s geht ned auf %s", c.Name, c.Receiver.Type())
	}
}

func methodContains(c *Call) (types.Value, error) {
	switch c.Receiver.Type() {
	case types.TypeList:
		for _, item := range c.Receiver.AsList() {
			if item.Equal(c.Arg) {
				return types.NewBool(true), nil
			}
		}
		return types.NewBool(false), nil
	case types.TypeMap:
		key, ok := types.MapKey(c.Arg)
		if !ok {
			return types.NewBool(false), nil
		}
		_, found := c.Receiver.AsMap().Get(key)
		return types.NewBool(found), nil
	case types.TypeString:
		if c.Arg.Type() != types.TypeString {
			return types.Null, types.NewTypeError(".gibts auf Text braucht an Text, ned %s", c.Arg.Type())
		}
		return types.NewBool(strings.Contains(c.Receiver.AsString(), c.Arg.AsString())), nil
	default:
		return types.Null, types.NewTypeError(".gibts geht ned auf %s", c.Receiver.Type())
	}
}

func methodSliceFrom(c *Call) (types.Value, error) {
	if c.Arg.Type() != types.TypeInt {
		return types.Null, types.NewTypeError(".ausse braucht a ganze Zahl, ned %s", c.Arg.Type())
	}
	from := c.Arg.AsInt()
	if from < 0 {
		return types.Null, types.NewIndexError("Index %d is negativ", from)
	}
	switch c.Receiver.Type() {
	case types.TypeList:
		items := c.Receiver.AsList()
		if from >= int64(len(items)) {
			return types.NewList(nil), nil
		}
		out := make([]types.Value, 0, int64(len(items))-from)
		for _, item := range items[from:] {
			out = append(out, item.Clone())
		}
		return types.NewList(out), nil
	case types.TypeString:
		runes := []rune(c.Receiver.AsString())
		if from >= int64(len(runes)) {
			return types.NewString(""), nil
		}
		return types.NewString(string(runes[from:])), nil
	default:
		return types.Null, types.NewTypeError(".ausse geht ned auf %s", c.Receiver.Type())
	}
}

func methodRandom(c *Call) (types.Value, error) {
	if !c.Receiver.IsCollection() {
		return types.Null, types.NewTypeError(".nimmIrgendwas geht ned auf %s", c.Receiver.Type())
	}
	items := c.Receiver.Elements()
	if len(items) == 0 {
		return types.Null, nil
	}
	return items[c.Rand.IntN(len(items))].Clone(), nil
}

func methodPush(c *Call) (types.Value, error) {
	if c.Receiver.Type() != types.TypeList {
		return types.Null, types.NewTypeError(".ane geht nur auf an Array, ned %s", c.Receiver.Type())
	}
	items := c.Receiver.Clone().AsList()
	return types.NewList(append(items, c.Arg.Clone())), nil
}

func methodSort(c *Call) (types.Value, error) {
	if c.Receiver.Type() != types.TypeList {
		return types.Null, types.NewTypeError(".ordne geht nur auf an Array, ned %s", c.Receiver.Type())
	}
	items := c.Receiver.Clone().AsList()
	var cmpErr error
	sort.SliceStable(items, func(i, j int) bool {
		n, ok := types.Compare(items[i], items[j])
		if !ok && cmpErr == nil {
			cmpErr = types.NewTypeError(".ordne kann %s und %s ned vergleichen", items[i].Type(), items[j].Type())
		}
		return n < 0
	})
	if cmpErr != nil {
		return types.Null, cmpErr
	}
	return types.NewList(items), nil
}

func methodToText(c *Call) (types.Value, error) {
	if c.Receiver.IsCollection() {
		return types.NewString(types.DisplayJoin(c.Receiver.Elements())), nil
	}
	return types.NewString(c.Receiver.String()), nil
}

func methodToNumber(c *Call) (types.Value, error) {
	switch c.Receiver.Type() {
	case types.TypeInt, types.TypeDouble:
		return c.Receiver, nil
	case types.TypeString:
		s := strings.TrimSpace(c.Receiver.AsString())
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return types.NewInt(n), nil
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return types.NewDouble(f), nil
		}
		return types.Null, types.NewTypeError("%q is ka Numma", c.Receiver.AsString())
	default:
		return types.Null, types.NewTypeError(".zuNumma geht ned auf %s", c.Receiver.Type())
	}
}
