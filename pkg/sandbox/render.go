package sandbox

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dop251/goja"
)

// errRenderDeadline is raised when rendering a value outlives the
// execution deadline.
var errRenderDeadline = errors.New("sandbox: render deadline exceeded")

var identifierPattern = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)

// helperSource evaluates to the built-ins the inspector needs. It runs
// before user code so later overrides of these globals have no effect.
//
// Map, Set and boxed primitives report the generic "Object" class, so they
// are recognised by calling a brand-checking built-in on them: the size
// getters and the valueOf methods throw a TypeError for any other receiver.
const helperSource = `({
	arrayFrom: Array.from,
	ownDescriptor: Object.getOwnPropertyDescriptor,
	mapEntries: Map.prototype.entries,
	mapSize: Object.getOwnPropertyDescriptor(Map.prototype, 'size').get,
	setValues: Set.prototype.values,
	setSize: Object.getOwnPropertyDescriptor(Set.prototype, 'size').get,
	dateGetTime: Date.prototype.getTime,
	regexpToString: RegExp.prototype.toString,
	stringValueOf: String.prototype.valueOf,
	numberValueOf: Number.prototype.valueOf,
	booleanValueOf: Boolean.prototype.valueOf,
})`

var promiseType = reflect.TypeOf((*goja.Promise)(nil))

// inspector renders goja values in the style of Node's util.inspect with
// unlimited depth and array length. Output is always a single line.
type inspector struct {
	vm       *goja.Runtime
	deadline time.Time

	arrayFrom      goja.Callable
	ownDescriptor  goja.Callable
	mapEntries     goja.Callable
	mapSize        goja.Callable
	setValues      goja.Callable
	setSize        goja.Callable
	dateGetTime    goja.Callable
	regexpToString goja.Callable
	stringValueOf  goja.Callable
	numberValueOf  goja.Callable
	booleanValueOf goja.Callable

	path []*goja.Object
	refs map[*goja.Object]int
}

func newInspector(vm *goja.Runtime, deadline time.Time) (*inspector, error) {
	v, err := vm.RunString(helperSource)
	if err != nil {
		return nil, fmt.Errorf("loading render helpers: %w", err)
	}
	helpers := v.ToObject(vm)

	in := &inspector{vm: vm, deadline: deadline}
	for name, dst := range map[string]*goja.Callable{
		"arrayFrom":      &in.arrayFrom,
		"ownDescriptor":  &in.ownDescriptor,
		"mapEntries":     &in.mapEntries,
		"mapSize":        &in.mapSize,
		"setValues":      &in.setValues,
		"setSize":        &in.setSize,
		"dateGetTime":    &in.dateGetTime,
		"regexpToString": &in.regexpToString,
		"stringValueOf":  &in.stringValueOf,
		"numberValueOf":  &in.numberValueOf,
		"booleanValueOf": &in.booleanValueOf,
	} {
		fn, ok := goja.AssertFunction(helpers.Get(name))
		if !ok {
			return nil, fmt.Errorf("render helper %s is not callable", name)
		}
		*dst = fn
	}
	return in, nil
}

// render formats v. Exceptions and interrupts raised while inspecting are
// returned as errors.
func (in *inspector) render(v goja.Value) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			switch x := r.(type) {
			case error:
				err = x
			default:
				err = fmt.Errorf("%v", r)
			}
		}
	}()
	in.path = nil
	in.refs = make(map[*goja.Object]int)
	return in.format(v), nil
}

func (in *inspector) checkDeadline() {
	if !in.deadline.IsZero() && time.Now().After(in.deadline) {
		panic(errRenderDeadline)
	}
}

// call invokes fn and panics with its error so that render can unwind.
func (in *inspector) call(fn goja.Callable, this goja.Value, args ...goja.Value) goja.Value {
	v, err := fn(this, args...)
	if err != nil {
		panic(err)
	}
	return v
}

// branded reports whether the brand-checking built-in fn accepts obj as its
// receiver. Interrupts still unwind the render.
func (in *inspector) branded(fn goja.Callable, obj *goja.Object) bool {
	_, err := fn(obj)
	if err == nil {
		return true
	}
	var exc *goja.Exception
	if errors.As(err, &exc) {
		return false
	}
	panic(err)
}

func (in *inspector) format(v goja.Value) string {
	if v == nil || goja.IsUndefined(v) {
		return "undefined"
	}
	if goja.IsNull(v) {
		return "null"
	}
	if sym, ok := v.(*goja.Symbol); ok {
		return symbolText(sym)
	}
	obj, ok := v.(*goja.Object)
	if !ok {
		return formatPrimitive(v)
	}

	for _, p := range in.path {
		if p == obj {
			id, seen := in.refs[obj]
			if !seen {
				id = len(in.refs) + 1
				in.refs[obj] = id
			}
			return fmt.Sprintf("[Circular *%d]", id)
		}
	}

	in.checkDeadline()
	in.path = append(in.path, obj)
	body := in.formatObject(obj)
	in.path = in.path[:len(in.path)-1]

	if id, ok := in.refs[obj]; ok {
		return fmt.Sprintf("<ref *%d> %s", id, body)
	}
	return body
}

// symbolText renders sym the way String(sym) does in JavaScript.
func symbolText(sym *goja.Symbol) string {
	return "Symbol(" + sym.String() + ")"
}

func formatPrimitive(v goja.Value) string {
	t := v.ExportType()
	if t == nil {
		return v.String()
	}
	switch t.Kind() {
	case reflect.String:
		return quote(v.String())
	case reflect.Float64:
		if f := v.ToFloat(); f == 0 && math.Signbit(f) {
			return "-0"
		}
	case reflect.Ptr:
		if t == reflect.TypeOf((*big.Int)(nil)) {
			return v.String() + "n"
		}
	}
	return v.String()
}

func (in *inspector) formatObject(obj *goja.Object) string {
	switch obj.ClassName() {
	case "Function":
		return in.formatFunction(obj)
	case "Array":
		return in.formatArray(obj)
	case "Error":
		return "[" + in.errorText(obj) + "]"
	case "Date":
		ms := in.call(in.dateGetTime, obj).ToFloat()
		if math.IsNaN(ms) {
			return "Invalid Date"
		}
		return time.UnixMilli(int64(ms)).UTC().Format("2006-01-02T15:04:05.000Z")
	case "RegExp":
		return in.call(in.regexpToString, obj).String()
	}

	if obj.ExportType() == promiseType {
		return in.formatPromise(obj)
	}
	switch {
	case in.branded(in.mapSize, obj):
		return in.formatCollection(obj, "Map", in.mapEntries, true)
	case in.branded(in.setSize, obj):
		return in.formatCollection(obj, "Set", in.setValues, false)
	case in.branded(in.stringValueOf, obj):
		return in.formatBoxed(obj, "String", in.stringValueOf)
	case in.branded(in.numberValueOf, obj):
		return in.formatBoxed(obj, "Number", in.numberValueOf)
	case in.branded(in.booleanValueOf, obj):
		return in.formatBoxed(obj, "Boolean", in.booleanValueOf)
	}
	return in.formatPlain(obj)
}

// formatBoxed renders a primitive wrapper object such as new String('s')
// as "[String: 's']".
func (in *inspector) formatBoxed(obj *goja.Object, kind string, valueOf goja.Callable) string {
	return fmt.Sprintf("[%s: %s]", kind, formatPrimitive(in.call(valueOf, obj)))
}

func (in *inspector) formatFunction(obj *goja.Object) string {
	name := ""
	if v, acc, ok := in.own(obj, "name"); ok && acc == "" && v != nil && !goja.IsUndefined(v) {
		name = v.String()
	}
	if name == "" {
		return "[Function (anonymous)]"
	}
	return "[Function: " + name + "]"
}

func (in *inspector) formatArray(obj *goja.Object) string {
	length := obj.Get("length").ToInteger()
	if length <= 0 {
		return "[]"
	}

	var parts []string
	holes := 0
	flush := func() {
		if holes == 0 {
			return
		}
		suffix := "s"
		if holes == 1 {
			suffix = ""
		}
		parts = append(parts, fmt.Sprintf("<%d empty item%s>", holes, suffix))
		holes = 0
	}

	for i := int64(0); i < length; i++ {
		in.checkDeadline()
		v, acc, ok := in.own(obj, strconv.FormatInt(i, 10))
		if !ok {
			holes++
			continue
		}
		flush()
		if acc != "" {
			parts = append(parts, acc)
			continue
		}
		parts = append(parts, in.format(v))
	}
	flush()

	return "[ " + strings.Join(parts, ", ") + " ]"
}

// formatCollection renders a Map or Set by draining the iterator returned
// by iterFn into an array.
func (in *inspector) formatCollection(obj *goja.Object, kind string, iterFn goja.Callable, pairs bool) string {
	iter := in.call(iterFn, obj)
	items := in.call(in.arrayFrom, goja.Undefined(), iter).ToObject(in.vm)
	n := items.Get("length").ToInteger()
	if n == 0 {
		return fmt.Sprintf("%s(0) {}", kind)
	}

	parts := make([]string, 0, n)
	for i := int64(0); i < n; i++ {
		in.checkDeadline()
		item := items.Get(strconv.FormatInt(i, 10))
		if !pairs {
			parts = append(parts, in.format(item))
			continue
		}
		pair := item.ToObject(in.vm)
		parts = append(parts, in.format(pair.Get("0"))+" => "+in.format(pair.Get("1")))
	}
	return fmt.Sprintf("%s(%d) { %s }", kind, n, strings.Join(parts, ", "))
}

func (in *inspector) formatPromise(obj *goja.Object) string {
	p, ok := obj.Export().(*goja.Promise)
	if !ok {
		return in.formatPlain(obj)
	}
	switch p.State() {
	case goja.PromiseStatePending:
		return "Promise { <pending> }"
	case goja.PromiseStateRejected:
		return "Promise { <rejected> " + in.format(p.Result()) + " }"
	default:
		return "Promise { " + in.format(p.Result()) + " }"
	}
}

func (in *inspector) formatPlain(obj *goja.Object) string {
	prefix := ""
	if proto := obj.Prototype(); proto == nil {
		prefix = "[Object: null prototype] "
	} else if name := in.constructorName(proto); name != "" && name != "Object" {
		prefix = name + " "
	}

	keys := obj.Keys()
	if len(keys) == 0 {
		return prefix + "{}"
	}

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		in.checkDeadline()
		v, acc, ok := in.own(obj, k)
		if !ok {
			continue
		}
		val := acc
		if acc == "" {
			val = in.format(v)
		}
		parts = append(parts, formatKey(k)+": "+val)
	}
	return prefix + "{ " + strings.Join(parts, ", ") + " }"
}

func (in *inspector) constructorName(proto *goja.Object) string {
	ctor, acc, ok := in.own(proto, "constructor")
	if !ok || acc != "" {
		return ""
	}
	ctorObj, isObj := ctor.(*goja.Object)
	if !isObj {
		return ""
	}
	name, acc, ok := in.own(ctorObj, "name")
	if !ok || acc != "" || name == nil || goja.IsUndefined(name) {
		return ""
	}
	return name.String()
}

// own looks up an own property of obj without invoking accessors. For
// accessor properties it returns a placeholder such as "[Getter]" instead
// of a value. exists is false when obj has no such own property.
func (in *inspector) own(obj *goja.Object, key string) (value goja.Value, accessor string, exists bool) {
	d := in.call(in.ownDescriptor, goja.Undefined(), obj, in.vm.ToValue(key))
	desc, ok := d.(*goja.Object)
	if !ok {
		return nil, "", false
	}

	get, set := desc.Get("get"), desc.Get("set")
	hasGet := get != nil && !goja.IsUndefined(get)
	hasSet := set != nil && !goja.IsUndefined(set)
	switch {
	case hasGet && hasSet:
		return nil, "[Getter/Setter]", true
	case hasGet:
		return nil, "[Getter]", true
	case hasSet:
		return nil, "[Setter]", true
	}
	return desc.Get("value"), "", true
}

// errorText renders a thrown value like Error.prototype.toString: "Name:
// message", "Name" or "message". Thrown primitives are rendered as
// "Uncaught <value>".
func (in *inspector) errorText(v goja.Value) (text string) {
	defer func() {
		if r := recover(); r != nil {
			text = "Error: uncaught exception"
		}
	}()

	obj, ok := v.(*goja.Object)
	if !ok {
		if in.refs == nil {
			in.refs = make(map[*goja.Object]int)
		}
		return "Uncaught " + in.format(v)
	}

	name := "Error"
	if n := obj.Get("name"); n != nil && !goja.IsUndefined(n) {
		name = n.String()
	}
	msg := ""
	if m := obj.Get("message"); m != nil && !goja.IsUndefined(m) {
		msg = m.String()
	}
	switch {
	case name == "":
		return msg
	case msg == "":
		return name
	}
	return name + ": " + msg
}

func formatKey(k string) string {
	if identifierPattern.MatchString(k) {
		return k
	}
	return quote(k)
}

// quote renders s as a JavaScript string literal, preferring single quotes
// and switching quote style when s contains single quotes, like
// util.inspect does.
func quote(s string) string {
	q := '\''
	if strings.ContainsRune(s, '\'') {
		if !strings.ContainsRune(s, '"') {
			q = '"'
		} else if !strings.ContainsRune(s, '`') && !strings.Contains(s, "${") {
			q = '`'
		}
	}

	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteRune(q)
	for _, r := range s {
		switch r {
		case q:
			b.WriteByte('\\')
			b.WriteRune(r)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\t':
			b.WriteString(`\t`)
		case '\r':
			b.WriteString(`\r`)
		case '\b':
			b.WriteString(`\b`)
		case '\f':
			b.WriteString(`\f`)
		case '\v':
			b.WriteString(`\v`)
		default:
			if r < 0x20 || r == 0x7f {
				fmt.Fprintf(&b, `\x%02X`, r)
			} else {
				b.WriteRune(r)
			}
		}
	}
	b.WriteRune(q)
	return b.String()
}
