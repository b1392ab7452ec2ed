package rtabi

// Runtime entry points.
const (
	FnInit     = "rt_init"
	FnShutdown = "rt_shutdown"

	FnAlloc   = "rt_alloc"
	FnCollect = "rt_collect"

	FnPanic       = "rt_panic"
	FnPanicString = "rt_panic_string"

	FnPrintI64    = "rt_print_i64"
	FnPrintF64    = "rt_print_f64"
	FnPrintBool   = "rt_print_bool"
	FnPrintString = "rt_print_string"
	FnPrintln     = "rt_println"

	FnBoundsCheck = "rt_bounds_check"

	FnGetStats   = "rt_get_stats"
	FnPrintStats = "rt_print_stats"
)

// Built-in type descriptor symbols.
const (
	TypeDescInt    = "rt_type_int"
	TypeDescFloat  = "rt_type_float"
	TypeDescBool   = "rt_type_bool"
	TypeDescString = "rt_type_string"
)

// MainFunc is the name of the compiled program's entry routine.
const MainFunc = "yoru_main"

// FuncSignature describes a runtime function for the code generator.
type FuncSignature struct {
	Name       string
	ReturnType string
	ParamTypes []string
	NoReturn   bool
}

// RuntimeFunctions returns the signatures of all runtime entry points that
// generated code may call.
func RuntimeFunctions() []FuncSignature {
	str := "{ ptr, i64 }"
	return []FuncSignature{
		{Name: FnInit, ReturnType: "void"},
		{Name: FnShutdown, ReturnType: "void"},
		{Name: FnAlloc, ReturnType: "ptr", ParamTypes: []string{"i64", "ptr"}},
		{Name: FnCollect, ReturnType: "void"},
		{Name: FnPanic, ReturnType: "void", ParamTypes: []string{"ptr"}, NoReturn: true},
		{Name: FnPanicString, ReturnType: "void", ParamTypes: []string{str}, NoReturn: true},
		{Name: FnPrintI64, ReturnType: "void", ParamTypes: []string{"i64"}},
		{Name: FnPrintF64, ReturnType: "void", ParamTypes: []string{"double"}},
		{Name: FnPrintBool, ReturnType: "void", ParamTypes: []string{"i8"}},
		{Name: FnPrintString, ReturnType: "void", ParamTypes: []string{str}},
		{Name: FnPrintln, ReturnType: "void"},
		{Name: FnBoundsCheck, ReturnType: "void", ParamTypes: []string{"i64", "i64"}},
		{Name: FnGetStats, ReturnType: "{ i64, i64, i64, i64, i64 }"},
		{Name: FnPrintStats, ReturnType: "void"},
	}
}
