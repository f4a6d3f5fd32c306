package bytecode

import "fmt"

// ---------------------------------------------------------------------------
// Opcode definitions
// ---------------------------------------------------------------------------

// Opcode represents a single bytecode instruction.
type Opcode byte

// Stack Operations
const (
	OpNOP   Opcode = 0x00 // no operation
	OpPOP   Opcode = 0x01 // discard top of stack
	OpDUP   Opcode = 0x02 // duplicate top of stack
	OpSWAP  Opcode = 0x03 // swap top two values
	OpSLIDE Opcode = 0x04 // keep top, drop N values beneath it (8-bit N)
)

// Push Constants
const (
	OpPushNil       Opcode = 0x10 // push nil
	OpPushTrue      Opcode = 0x11 // push true
	OpPushFalse     Opcode = 0x12 // push false
	OpPushSelf      Opcode = 0x13 // push self
	OpPushInt8      Opcode = 0x14 // push 8-bit signed fixnum
	OpPushInt32     Opcode = 0x15 // push 32-bit signed integer
	OpPushLiteral   Opcode = 0x16 // push literal (16-bit index)
	OpPushNull      Opcode = 0x17 // push the engine's "no value" marker
	OpPushSelfClass Opcode = 0x18 // push metaclass of self
	OpPushObject    Opcode = 0x19 // push the Object class
	OpPushModule    Opcode = 0x1A // push the current lexical module
	OpNewString     Opcode = 0x1B // push a fresh mutable copy of a string literal (16-bit index)
)

// Variable Operations
const (
	OpPushLocal        Opcode = 0x20 // push local (8-bit slot, 8-bit depth)
	OpStoreLocal       Opcode = 0x21 // store top into local (8-bit slot, 8-bit depth)
	OpPushIvar         Opcode = 0x22 // push instance variable of self (16-bit name)
	OpStoreIvar        Opcode = 0x23 // store top into instance variable (16-bit name)
	OpPushIvarRaw      Opcode = 0x24 // push instance variable, null when unset (16-bit name)
	OpPushGlobal       Opcode = 0x25 // push global (16-bit name)
	OpStoreGlobal      Opcode = 0x26 // store top into global (16-bit name)
	OpPushCvar         Opcode = 0x27 // push class variable (16-bit name)
	OpStoreCvar        Opcode = 0x28 // store top into class variable (16-bit name)
	OpPushConst        Opcode = 0x29 // push constant: lexical, module, ancestors, Object (16-bit name)
	OpPushConstFrom    Opcode = 0x2A // replace module on top with its constant (16-bit name)
	OpStoreConst       Opcode = 0x2B // store top into constant of current module (16-bit name)
	OpStoreConstIn     Opcode = 0x2C // [module value] -> [value], assigns in module (16-bit name)
	OpStoreConstObject Opcode = 0x2D // store top into constant of Object (16-bit name)
	OpPushBlockArg     Opcode = 0x2E // push incoming argument or nil (8-bit index)
)

// Message Sends
const (
	OpSend      Opcode = 0x30 // send (16-bit name, 8-bit argc, 8-bit call kind)
	OpSendSuper Opcode = 0x31 // zsuper-style send to the superclass method (8-bit argc)
	OpYield     Opcode = 0x32 // yield to the frame's block (8-bit argc)
)

// Control Flow
const (
	OpJump        Opcode = 0x60 // unconditional jump (16-bit offset)
	OpJumpTrue    Opcode = 0x61 // pop, jump if truthy
	OpJumpFalse   Opcode = 0x62 // pop, jump if falsy (nil or false)
	OpJumpNil     Opcode = 0x63 // pop, jump if nil
	OpJumpNull    Opcode = 0x64 // pop, jump if null
	OpJumpNotNull Opcode = 0x65 // pop, jump unless null
	OpJumpNotGE   Opcode = 0x66 // pop b, pop a, jump unless a >= b
	OpJumpNotGT   Opcode = 0x67 // pop b, pop a, jump unless a > b
	OpJumpNotLE   Opcode = 0x68 // pop b, pop a, jump unless a <= b
	OpJumpNotLT   Opcode = 0x69 // pop b, pop a, jump unless a < b
)

// Returns and unwinding
const (
	OpReturn         Opcode = 0x70 // return top from the current frame
	OpReturnNonLocal Opcode = 0x71 // return top from the closure's home method
	OpBreakNonLocal  Opcode = 0x72 // break out of the call that yielded to this closure
	OpReraise        Opcode = 0x73 // raise the exception on top of stack again
)

// Closures and definitions
const (
	OpCreateClosure Opcode = 0x80 // create closure over child unit (16-bit unit index)
	OpDefineMethod  Opcode = 0x81 // bind child unit in the current definee (16-bit unit index)
	OpDefineAlias   Opcode = 0x82 // alias (16-bit new name, 16-bit old name)
)

// Aggregates
const (
	OpObjectArray     Opcode = 0x90 // fold N values into a value array (16-bit N)
	OpNewArray        Opcode = 0x91 // value array -> array object (8-bit lightweight flag)
	OpEmptyArray      Opcode = 0x92 // push empty array object
	OpEmptyHash       Opcode = 0x93 // push empty hash
	OpNewHash         Opcode = 0x94 // fold N key/value pairs into a hash (16-bit N)
	OpNewRange        Opcode = 0x95 // [begin end] -> range (8-bit exclusive flag)
	OpConcatStrings   Opcode = 0x96 // fold N pieces into a string (16-bit N)
	OpNewRegexp       Opcode = 0x97 // push regexp literal (16-bit index)
	OpSplat           Opcode = 0x98 // value -> value array
	OpSingleify       Opcode = 0x99 // value array -> first element or nil
	OpEnsureArray     Opcode = 0x9A // wrap a non-value-array into a value array
	OpEnsureMasgn     Opcode = 0x9B // value -> value array for multiple assignment (8-bit has-head)
	OpArrayEntry      Opcode = 0x9C // value array -> element N or nil (16-bit N)
	OpArraySize       Opcode = 0x9D // push size of value array on top, keeping it
	OpConcatArrays    Opcode = 0x9E // [a b] -> a + b
	OpUnwrapArray     Opcode = 0x9F // array object -> value array
)

// Tests and reflection
const (
	OpNot             Opcode = 0xA0 // logical not
	OpNullToNil       Opcode = 0xA1 // null -> nil
	OpStringOrNil     Opcode = 0xA2 // null -> nil, other -> string
	OpToS             Opcode = 0xA3 // value -> string via to_s
	OpIsNil           Opcode = 0xA4 // value -> boolean
	OpIsNull          Opcode = 0xA5 // value -> boolean
	OpInstanceOf      Opcode = 0xA6 // value -> boolean (16-bit class name)
	OpIsModule        Opcode = 0xA7 // value -> boolean
	OpMetaclass       Opcode = 0xA8 // value -> its metaclass
	OpSuperclass      Opcode = 0xA9 // class -> superclass
	OpInDefined       Opcode = 0xAA // enter defined? evaluation
	OpOutDefined      Opcode = 0xAB // leave defined? evaluation
	OpMethodBound     Opcode = 0xAC // receiver -> boolean (16-bit name)
	OpHasBlock        Opcode = 0xAD // push whether the frame has a block
	OpGlobalDefined   Opcode = 0xAE // push boolean (16-bit name)
	OpConstDefined    Opcode = 0xAF // push boolean (16-bit name)
	OpIvarDefined     Opcode = 0xB0 // push boolean (16-bit name)
	OpCvarDefined     Opcode = 0xB1 // push boolean (16-bit name)
	OpConstDefinedIn  Opcode = 0xB2 // module -> boolean (16-bit name)
	OpVisibility      Opcode = 0xB3 // class -> visibility of method (16-bit name)
	OpIsPrivate       Opcode = 0xB4 // visibility -> boolean
	OpIsProtected     Opcode = 0xB5 // visibility -> boolean
	OpSelfKindOf      Opcode = 0xB6 // class -> self.kind_of?(class)
	OpCvarDefinedIn   Opcode = 0xB7 // value -> module and has class variable (16-bit name)
	OpIsSingleton     Opcode = 0xB8 // class -> boolean
	OpSuperBound      Opcode = 0xB9 // push whether the frame's super method exists
	OpCaptured        Opcode = 0xBA // push whether $N is captured (8-bit N)
)

// Frame, regexp and runtime services
const (
	OpPushFrameName  Opcode = 0xC0 // push current method name as symbol
	OpPushFrameClass Opcode = 0xC1 // push current method's owner
	OpPushBackref    Opcode = 0xC2 // push $~
	OpBackrefMethod  Opcode = 0xC3 // push $&, $`, $' or $+ (16-bit name)
	OpNthRef         Opcode = 0xC4 // push $N (8-bit N)
	OpMatch          Opcode = 0xC5 // regexp -> regexp =~ $_
	OpMatch2         Opcode = 0xC6 // [regexp value] -> regexp =~ value
	OpMatch3         Opcode = 0xC7 // [value regexp] -> value =~ regexp
	OpPoll           Opcode = 0xC8 // check for pending thread events
	OpTrace          Opcode = 0xC9 // emit a debug trace (16-bit message)
)

// ---------------------------------------------------------------------------
// Opcode metadata
// ---------------------------------------------------------------------------

// VariableEffect marks opcodes whose stack effect depends on an operand.
const VariableEffect = 1 << 8

// OpcodeInfo holds metadata about an opcode.
type OpcodeInfo struct {
	Name         string // human-readable name
	OperandBytes int    // number of operand bytes
	StackEffect  int    // net effect on stack (VariableEffect = operand dependent)
	Terminator   bool   // control never falls through
	Jump         bool   // operand is a 16-bit relative jump offset
}

// opcodeTable maps opcodes to their metadata.
var opcodeTable = map[Opcode]OpcodeInfo{
	OpNOP:   {Name: "NOP"},
	OpPOP:   {Name: "POP", StackEffect: -1},
	OpDUP:   {Name: "DUP", StackEffect: 1},
	OpSWAP:  {Name: "SWAP"},
	OpSLIDE: {Name: "SLIDE", OperandBytes: 1, StackEffect: VariableEffect},

	OpPushNil:       {Name: "PUSH_NIL", StackEffect: 1},
	OpPushTrue:      {Name: "PUSH_TRUE", StackEffect: 1},
	OpPushFalse:     {Name: "PUSH_FALSE", StackEffect: 1},
	OpPushSelf:      {Name: "PUSH_SELF", StackEffect: 1},
	OpPushInt8:      {Name: "PUSH_INT8", OperandBytes: 1, StackEffect: 1},
	OpPushInt32:     {Name: "PUSH_INT32", OperandBytes: 4, StackEffect: 1},
	OpPushLiteral:   {Name: "PUSH_LITERAL", OperandBytes: 2, StackEffect: 1},
	OpPushNull:      {Name: "PUSH_NULL", StackEffect: 1},
	OpPushSelfClass: {Name: "PUSH_SELF_CLASS", StackEffect: 1},
	OpPushObject:    {Name: "PUSH_OBJECT", StackEffect: 1},
	OpPushModule:    {Name: "PUSH_MODULE", StackEffect: 1},
	OpNewString:     {Name: "NEW_STRING", OperandBytes: 2, StackEffect: 1},

	OpPushLocal:        {Name: "PUSH_LOCAL", OperandBytes: 2, StackEffect: 1},
	OpStoreLocal:       {Name: "STORE_LOCAL", OperandBytes: 2},
	OpPushIvar:         {Name: "PUSH_IVAR", OperandBytes: 2, StackEffect: 1},
	OpStoreIvar:        {Name: "STORE_IVAR", OperandBytes: 2},
	OpPushIvarRaw:      {Name: "PUSH_IVAR_RAW", OperandBytes: 2, StackEffect: 1},
	OpPushGlobal:       {Name: "PUSH_GLOBAL", OperandBytes: 2, StackEffect: 1},
	OpStoreGlobal:      {Name: "STORE_GLOBAL", OperandBytes: 2},
	OpPushCvar:         {Name: "PUSH_CVAR", OperandBytes: 2, StackEffect: 1},
	OpStoreCvar:        {Name: "STORE_CVAR", OperandBytes: 2},
	OpPushConst:        {Name: "PUSH_CONST", OperandBytes: 2, StackEffect: 1},
	OpPushConstFrom:    {Name: "PUSH_CONST_FROM", OperandBytes: 2},
	OpStoreConst:       {Name: "STORE_CONST", OperandBytes: 2},
	OpStoreConstIn:     {Name: "STORE_CONST_IN", OperandBytes: 2, StackEffect: -1},
	OpStoreConstObject: {Name: "STORE_CONST_OBJECT", OperandBytes: 2},
	OpPushBlockArg:     {Name: "PUSH_BLOCK_ARG", OperandBytes: 1, StackEffect: 1},

	OpSend:      {Name: "SEND", OperandBytes: 4, StackEffect: VariableEffect},
	OpSendSuper: {Name: "SEND_SUPER", OperandBytes: 1, StackEffect: VariableEffect},
	OpYield:     {Name: "YIELD", OperandBytes: 1, StackEffect: VariableEffect},

	OpJump:        {Name: "JUMP", OperandBytes: 2, Terminator: true, Jump: true},
	OpJumpTrue:    {Name: "JUMP_TRUE", OperandBytes: 2, StackEffect: -1, Jump: true},
	OpJumpFalse:   {Name: "JUMP_FALSE", OperandBytes: 2, StackEffect: -1, Jump: true},
	OpJumpNil:     {Name: "JUMP_NIL", OperandBytes: 2, StackEffect: -1, Jump: true},
	OpJumpNull:    {Name: "JUMP_NULL", OperandBytes: 2, StackEffect: -1, Jump: true},
	OpJumpNotNull: {Name: "JUMP_NOT_NULL", OperandBytes: 2, StackEffect: -1, Jump: true},
	OpJumpNotGE:   {Name: "JUMP_NOT_GE", OperandBytes: 2, StackEffect: -2, Jump: true},
	OpJumpNotGT:   {Name: "JUMP_NOT_GT", OperandBytes: 2, StackEffect: -2, Jump: true},
	OpJumpNotLE:   {Name: "JUMP_NOT_LE", OperandBytes: 2, StackEffect: -2, Jump: true},
	OpJumpNotLT:   {Name: "JUMP_NOT_LT", OperandBytes: 2, StackEffect: -2, Jump: true},

	OpReturn:         {Name: "RETURN", StackEffect: -1, Terminator: true},
	OpReturnNonLocal: {Name: "RETURN_NONLOCAL", StackEffect: -1, Terminator: true},
	OpBreakNonLocal:  {Name: "BREAK_NONLOCAL", StackEffect: -1, Terminator: true},
	OpReraise:        {Name: "RERAISE", StackEffect: -1, Terminator: true},

	OpCreateClosure: {Name: "CREATE_CLOSURE", OperandBytes: 2, StackEffect: 1},
	OpDefineMethod:  {Name: "DEFINE_METHOD", OperandBytes: 2, StackEffect: 1},
	OpDefineAlias:   {Name: "DEFINE_ALIAS", OperandBytes: 4, StackEffect: 1},

	OpObjectArray:   {Name: "OBJECT_ARRAY", OperandBytes: 2, StackEffect: VariableEffect},
	OpNewArray:      {Name: "NEW_ARRAY", OperandBytes: 1},
	OpEmptyArray:    {Name: "EMPTY_ARRAY", StackEffect: 1},
	OpEmptyHash:     {Name: "EMPTY_HASH", StackEffect: 1},
	OpNewHash:       {Name: "NEW_HASH", OperandBytes: 2, StackEffect: VariableEffect},
	OpNewRange:      {Name: "NEW_RANGE", OperandBytes: 1, StackEffect: -1},
	OpConcatStrings: {Name: "CONCAT_STRINGS", OperandBytes: 2, StackEffect: VariableEffect},
	OpNewRegexp:     {Name: "NEW_REGEXP", OperandBytes: 2, StackEffect: 1},
	OpSplat:         {Name: "SPLAT"},
	OpSingleify:     {Name: "SINGLEIFY"},
	OpEnsureArray:   {Name: "ENSURE_ARRAY"},
	OpEnsureMasgn:   {Name: "ENSURE_MASGN", OperandBytes: 1},
	OpArrayEntry:    {Name: "ARRAY_ENTRY", OperandBytes: 2},
	OpArraySize:     {Name: "ARRAY_SIZE", StackEffect: 1},
	OpConcatArrays:  {Name: "CONCAT_ARRAYS", StackEffect: -1},
	OpUnwrapArray:   {Name: "UNWRAP_ARRAY"},

	OpNot:            {Name: "NOT"},
	OpNullToNil:      {Name: "NULL_TO_NIL"},
	OpStringOrNil:    {Name: "STRING_OR_NIL"},
	OpToS:            {Name: "TO_S"},
	OpIsNil:          {Name: "IS_NIL"},
	OpIsNull:         {Name: "IS_NULL"},
	OpInstanceOf:     {Name: "INSTANCE_OF", OperandBytes: 2},
	OpIsModule:       {Name: "IS_MODULE"},
	OpMetaclass:      {Name: "METACLASS"},
	OpSuperclass:     {Name: "SUPERCLASS"},
	OpInDefined:      {Name: "IN_DEFINED"},
	OpOutDefined:     {Name: "OUT_DEFINED"},
	OpMethodBound:    {Name: "METHOD_BOUND", OperandBytes: 2},
	OpHasBlock:       {Name: "HAS_BLOCK", StackEffect: 1},
	OpGlobalDefined:  {Name: "GLOBAL_DEFINED", OperandBytes: 2, StackEffect: 1},
	OpConstDefined:   {Name: "CONST_DEFINED", OperandBytes: 2, StackEffect: 1},
	OpIvarDefined:    {Name: "IVAR_DEFINED", OperandBytes: 2, StackEffect: 1},
	OpCvarDefined:    {Name: "CVAR_DEFINED", OperandBytes: 2, StackEffect: 1},
	OpConstDefinedIn: {Name: "CONST_DEFINED_IN", OperandBytes: 2},
	OpVisibility:     {Name: "VISIBILITY", OperandBytes: 2},
	OpIsPrivate:      {Name: "IS_PRIVATE"},
	OpIsProtected:    {Name: "IS_PROTECTED"},
	OpSelfKindOf:     {Name: "SELF_KIND_OF"},
	OpCvarDefinedIn:  {Name: "CVAR_DEFINED_IN", OperandBytes: 2},
	OpIsSingleton:    {Name: "IS_SINGLETON"},
	OpSuperBound:     {Name: "SUPER_BOUND", StackEffect: 1},
	OpCaptured:       {Name: "CAPTURED", OperandBytes: 1, StackEffect: 1},

	OpPushFrameName:  {Name: "PUSH_FRAME_NAME", StackEffect: 1},
	OpPushFrameClass: {Name: "PUSH_FRAME_CLASS", StackEffect: 1},
	OpPushBackref:    {Name: "PUSH_BACKREF", StackEffect: 1},
	OpBackrefMethod:  {Name: "BACKREF_METHOD", OperandBytes: 2, StackEffect: 1},
	OpNthRef:         {Name: "NTH_REF", OperandBytes: 1, StackEffect: 1},
	OpMatch:          {Name: "MATCH"},
	OpMatch2:         {Name: "MATCH2", StackEffect: -1},
	OpMatch3:         {Name: "MATCH3", StackEffect: -1},
	OpPoll:           {Name: "POLL"},
	OpTrace:          {Name: "TRACE", OperandBytes: 2},
}

// Info returns the metadata for an opcode.
func (op Opcode) Info() OpcodeInfo {
	if info, ok := opcodeTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN_%02X", byte(op))}
}

// Known reports whether op is a defined opcode.
func (op Opcode) Known() bool {
	_, ok := opcodeTable[op]
	return ok
}

// Name returns the human-readable name for an opcode.
func (op Opcode) Name() string {
	return op.Info().Name
}

// OperandBytes returns the number of operand bytes for an opcode.
func (op Opcode) OperandBytes() int {
	return op.Info().OperandBytes
}

// String implements the Stringer interface.
func (op Opcode) String() string {
	return op.Name()
}

// Effect returns the net stack effect of op given its count operand.
// The operand is ignored for opcodes with a fixed effect.
//
//	SLIDE n          -n
//	SEND argc        -argc   (receiver, args and block replaced by the result;
//	                          the operand counts the block when one is passed)
//	SEND_SUPER argc  1-argc
//	YIELD argc       1-argc
//	OBJECT_ARRAY n   1-n
//	CONCAT_STRINGS n 1-n
//	NEW_HASH n       1-2n
func (op Opcode) Effect(operand int) int {
	switch op {
	case OpSLIDE:
		return -operand
	case OpSend:
		return -operand
	case OpSendSuper, OpYield, OpObjectArray, OpConcatStrings:
		return 1 - operand
	case OpNewHash:
		return 1 - 2*operand
	}
	return op.Info().StackEffect
}

// ---------------------------------------------------------------------------
// Call kinds (SEND operand)
// ---------------------------------------------------------------------------

// CallKind selects the visibility rules for a SEND.
type CallKind uint8

const (
	CallNormal     CallKind = iota // recv.name(args): public methods only
	CallFunctional                 // name(args): implicit self, private allowed
	CallVariable                   // bare identifier that turned out to be a call

	// CallWithBlock is or-ed into the kind when a closure sits on top of
	// the arguments.
	CallWithBlock CallKind = 0x80
)

// Base strips the block bit.
func (k CallKind) Base() CallKind {
	return k &^ CallWithBlock
}

// HasBlock reports whether a block argument is passed.
func (k CallKind) HasBlock() bool {
	return k&CallWithBlock != 0
}

func (k CallKind) String() string {
	var s string
	switch k.Base() {
	case CallNormal:
		s = "normal"
	case CallFunctional:
		s = "fcall"
	case CallVariable:
		s = "vcall"
	default:
		s = fmt.Sprintf("kind(%d)", uint8(k.Base()))
	}
	if k.HasBlock() {
		s += "+block"
	}
	return s
}
