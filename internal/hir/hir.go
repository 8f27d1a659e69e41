// Package hir defines the SSA-form high-level IR: the instruction set, the
// basic blocks and frames the block builder produces, and the builder
// itself. Later stages consume frames through the linear serializer.
package hir

import (
	"fmt"
	"math"

	"github.com/hadron-sclang/hadron/internal/slot"
)

// ValueID numbers SSA values within one frame.
type ValueID uint32

const InvalidValueID ValueID = math.MaxUint32

// Value pairs an SSA number with the type flags proposed for it. Type
// flags widen across phis by ORing.
type Value struct {
	Number    ValueID
	TypeFlags slot.Type
}

var InvalidValue = Value{Number: InvalidValueID}

func (v Value) Valid() bool { return v.Number != InvalidValueID && v.TypeFlags != 0 }

func (v Value) String() string {
	if !v.Valid() {
		return "v?"
	}
	return fmt.Sprintf("v%d(%s)", v.Number, v.TypeFlags)
}

// Opcode tags the HIR sum.
type Opcode int32

const (
	OpcodeLoadArgument Opcode = iota
	OpcodeLoadArgumentType
	OpcodeConstant
	OpcodeBinaryOp
	OpcodeStoreReturn

	// OpcodeResolveType notes that a dynamically-typed value's runtime
	// type must be tracked as a value of its own.
	OpcodeResolveType

	OpcodeLoadInstanceVariable
	OpcodeLoadInstanceVariableType
	OpcodeLoadClassVariable
	OpcodeLoadClassVariableType
	OpcodeStoreInstanceVariable
	OpcodeStoreClassVariable

	OpcodePhi
	OpcodeBranch
	OpcodeBranchIfZero
	// OpcodeLabel marks the start of a serialized block and owns the
	// block's phis.
	OpcodeLabel

	OpcodeDispatchSetupStack
	OpcodeDispatchStoreArg
	OpcodeDispatchStoreKeyArg
	OpcodeDispatchCall
	OpcodeDispatchLoadReturn
	OpcodeDispatchLoadReturnType
	OpcodeDispatchCleanup

	// OpcodeMoves is a pseudo-op occupying a reserved padding slot; it
	// carries only a scheduled move map inserted by the resolver.
	OpcodeMoves
)

// HIR is one instruction. Every op creates at most one new value and may
// read others; both sets drive lifetime analysis.
type HIR interface {
	Opcode() Opcode
	// Value returns the op's result, invalid for side-effect-only ops.
	Value() Value
	// Reads returns the values this op consumes.
	Reads() []Value
	// Moves returns origin→destination register (>= 0) or spill slot
	// (negative) transfers executed before this op, allocating the map on
	// first use.
	Moves() map[int]int
	// Locations maps the value numbers in Reads and Value to registers,
	// built during register allocation.
	Locations() map[ValueID]int

	// ProposeValue assigns the result number, letting the op fix up the
	// proposed type. Returns the recorded value, which may be invalid for
	// ops that consume values without producing one.
	ProposeValue(number ValueID) Value
}

type base struct {
	opcode    Opcode
	value     Value
	reads     []Value
	moves     map[int]int
	locations map[ValueID]int
}

func (b *base) Opcode() Opcode { return b.opcode }
func (b *base) Value() Value   { return b.value }
func (b *base) Reads() []Value { return b.reads }

func (b *base) Moves() map[int]int {
	if b.moves == nil {
		b.moves = make(map[int]int)
	}
	return b.moves
}

func (b *base) Locations() map[ValueID]int {
	if b.locations == nil {
		b.locations = make(map[ValueID]int)
	}
	return b.locations
}

func (b *base) addRead(v Value) { b.reads = append(b.reads, v) }

// AddMove records a predicate move. Origins must be unique: scheduling
// requires each origin be copied exactly once.
func AddMove(h HIR, from, to int) error {
	moves := h.Moves()
	if existing, ok := moves[from]; ok && existing != to {
		return fmt.Errorf("conflicting moves from %d: to %d and %d", from, existing, to)
	}
	moves[from] = to
	return nil
}

// LoadArgument loads the argument at Index from the frame.
type LoadArgument struct {
	base
	Index     int
	IsVarArgs bool
}

func NewLoadArgument(index int, isVarArgs bool) *LoadArgument {
	return &LoadArgument{base: base{opcode: OpcodeLoadArgument, value: InvalidValue}, Index: index, IsVarArgs: isVarArgs}
}

func (h *LoadArgument) ProposeValue(number ValueID) Value {
	h.value = Value{Number: number, TypeFlags: slot.TypeAny}
	return h.value
}

// LoadArgumentType loads the runtime type word of the argument at Index.
type LoadArgumentType struct {
	base
	Index int
}

func NewLoadArgumentType(index int) *LoadArgumentType {
	return &LoadArgumentType{base: base{opcode: OpcodeLoadArgumentType, value: InvalidValue}, Index: index}
}

func (h *LoadArgumentType) ProposeValue(number ValueID) Value {
	h.value = Value{Number: number, TypeFlags: slot.TypeType}
	return h.value
}

// Constant materializes a Slot.
type Constant struct {
	base
	Constant slot.Slot
}

func NewConstant(c slot.Slot) *Constant {
	return &Constant{base: base{opcode: OpcodeConstant, value: InvalidValue}, Constant: c}
}

// NewTypedConstant is NewConstant for literals whose slot encoding does
// not carry the full type, such as string spans.
func NewTypedConstant(c slot.Slot, t slot.Type) *Constant {
	h := NewConstant(c)
	h.value.TypeFlags = t
	return h
}

func (h *Constant) ProposeValue(number ValueID) Value {
	t := h.value.TypeFlags
	if t == 0 {
		t = h.Constant.Type()
	}
	h.value = Value{Number: number, TypeFlags: t}
	return h.value
}

// BinaryOpKind selects the primitive arithmetic operation.
type BinaryOpKind int32

const (
	BinaryAdd BinaryOpKind = iota
	BinarySubtract
	BinaryMultiply
	BinaryDivide
	BinaryLessThan
	BinaryGreaterThan
	BinaryLessThanOrEqual
	BinaryGreaterThanOrEqual
	BinaryEqual
	BinaryNotEqual
)

func (k BinaryOpKind) IsComparison() bool { return k >= BinaryLessThan }

// BinaryOp is primitive arithmetic on operands whose numeric types are
// known at compile time. Binops on unknown types lower to dispatch.
type BinaryOp struct {
	base
	Op    BinaryOpKind
	Left  Value
	Right Value
}

func NewBinaryOp(op BinaryOpKind, left, right Value) *BinaryOp {
	h := &BinaryOp{base: base{opcode: OpcodeBinaryOp, value: InvalidValue}, Op: op, Left: left, Right: right}
	h.addRead(left)
	h.addRead(right)
	return h
}

func (h *BinaryOp) ProposeValue(number ValueID) Value {
	t := slot.TypeInteger
	switch {
	case h.Op.IsComparison():
		t = slot.TypeBoolean
	case (h.Left.TypeFlags|h.Right.TypeFlags)&slot.TypeFloat != 0:
		t = slot.TypeFloat
	}
	h.value = Value{Number: number, TypeFlags: t}
	return h.value
}

// StoreReturn writes the frame's return value and type at slot 0.
type StoreReturn struct {
	base
	ReturnValue Value
	ReturnType  Value
}

func NewStoreReturn(value, typeValue Value) *StoreReturn {
	h := &StoreReturn{base: base{opcode: OpcodeStoreReturn, value: InvalidValue},
		ReturnValue: value, ReturnType: typeValue}
	h.addRead(value)
	if typeValue.Valid() {
		h.addRead(typeValue)
	}
	return h
}

func (h *StoreReturn) ProposeValue(ValueID) Value { return InvalidValue }

// ResolveType produces the runtime type of a value as a value of its own,
// so dynamically-typed operands can carry their type word beside them.
type ResolveType struct {
	base
	TypeOfValue Value
}

func NewResolveType(v Value) *ResolveType {
	h := &ResolveType{base: base{opcode: OpcodeResolveType, value: InvalidValue}, TypeOfValue: v}
	h.addRead(v)
	return h
}

func (h *ResolveType) ProposeValue(number ValueID) Value {
	h.value = Value{Number: number, TypeFlags: slot.TypeType}
	return h.value
}

// LoadInstanceVariable, LoadClassVariable and friends access object state
// by slot index relative to the instance or the class variable table.
type LoadInstanceVariable struct {
	base
	Index int
}

func NewLoadInstanceVariable(index int) *LoadInstanceVariable {
	return &LoadInstanceVariable{base: base{opcode: OpcodeLoadInstanceVariable, value: InvalidValue}, Index: index}
}

func (h *LoadInstanceVariable) ProposeValue(number ValueID) Value {
	h.value = Value{Number: number, TypeFlags: slot.TypeAny}
	return h.value
}

type LoadInstanceVariableType struct {
	base
	Index int
}

func NewLoadInstanceVariableType(index int) *LoadInstanceVariableType {
	return &LoadInstanceVariableType{base: base{opcode: OpcodeLoadInstanceVariableType, value: InvalidValue}, Index: index}
}

func (h *LoadInstanceVariableType) ProposeValue(number ValueID) Value {
	h.value = Value{Number: number, TypeFlags: slot.TypeType}
	return h.value
}

type LoadClassVariable struct {
	base
	Index int
}

func NewLoadClassVariable(index int) *LoadClassVariable {
	return &LoadClassVariable{base: base{opcode: OpcodeLoadClassVariable, value: InvalidValue}, Index: index}
}

func (h *LoadClassVariable) ProposeValue(number ValueID) Value {
	h.value = Value{Number: number, TypeFlags: slot.TypeAny}
	return h.value
}

type LoadClassVariableType struct {
	base
	Index int
}

func NewLoadClassVariableType(index int) *LoadClassVariableType {
	return &LoadClassVariableType{base: base{opcode: OpcodeLoadClassVariableType, value: InvalidValue}, Index: index}
}

func (h *LoadClassVariableType) ProposeValue(number ValueID) Value {
	h.value = Value{Number: number, TypeFlags: slot.TypeType}
	return h.value
}

type StoreInstanceVariable struct {
	base
	Index     int
	ToStore   Value
	StoreType Value
}

func NewStoreInstanceVariable(index int, toStore, storeType Value) *StoreInstanceVariable {
	h := &StoreInstanceVariable{base: base{opcode: OpcodeStoreInstanceVariable, value: InvalidValue},
		Index: index, ToStore: toStore, StoreType: storeType}
	h.addRead(toStore)
	if storeType.Valid() {
		h.addRead(storeType)
	}
	return h
}

func (h *StoreInstanceVariable) ProposeValue(ValueID) Value { return InvalidValue }

type StoreClassVariable struct {
	base
	Index     int
	ToStore   Value
	StoreType Value
}

func NewStoreClassVariable(index int, toStore, storeType Value) *StoreClassVariable {
	h := &StoreClassVariable{base: base{opcode: OpcodeStoreClassVariable, value: InvalidValue},
		Index: index, ToStore: toStore, StoreType: storeType}
	h.addRead(toStore)
	if storeType.Valid() {
		h.addRead(storeType)
	}
	return h
}

func (h *StoreClassVariable) ProposeValue(ValueID) Value { return InvalidValue }

// Phi reconciles a value arriving from multiple predecessors. Inputs are
// ordered to match the owning block's predecessor list.
type Phi struct {
	base
	Inputs []Value
}

func NewPhi() *Phi {
	return &Phi{base: base{opcode: OpcodePhi, value: InvalidValue}}
}

func (h *Phi) AddInput(v Value) {
	h.Inputs = append(h.Inputs, v)
	h.addRead(v)
	h.value.TypeFlags |= v.TypeFlags
}

// TrivialValue returns the single distinct non-self input if this phi is
// trivial, or InvalidValue.
func (h *Phi) TrivialValue() Value {
	distinct := InvalidValue
	for _, in := range h.Inputs {
		if in.Number == h.value.Number {
			continue
		}
		if distinct.Valid() && distinct.Number != in.Number {
			return InvalidValue
		}
		distinct = in
	}
	return distinct
}

func (h *Phi) ProposeValue(number ValueID) Value {
	t := slot.Type(0)
	for _, in := range h.Inputs {
		t |= in.TypeFlags
	}
	h.value = Value{Number: number, TypeFlags: t}
	return h.value
}

// rebuildReads recomputes reads after phi input replacement.
func (h *Phi) rebuildReads() {
	h.reads = h.reads[:0]
	t := slot.Type(0)
	for _, in := range h.Inputs {
		h.addRead(in)
		t |= in.TypeFlags
	}
	h.value.TypeFlags = t
}

// Branch jumps unconditionally to BlockNumber.
type Branch struct {
	base
	BlockNumber int
}

func NewBranch(blockNumber int) *Branch {
	return &Branch{base: base{opcode: OpcodeBranch, value: InvalidValue}, BlockNumber: blockNumber}
}

func (h *Branch) ProposeValue(ValueID) Value { return InvalidValue }

// BranchIfZero jumps to BlockNumber when the condition is falsey.
type BranchIfZero struct {
	base
	Condition   Value
	BlockNumber int
}

func NewBranchIfZero(condition Value, blockNumber int) *BranchIfZero {
	h := &BranchIfZero{base: base{opcode: OpcodeBranchIfZero, value: InvalidValue},
		Condition: condition, BlockNumber: blockNumber}
	h.addRead(condition)
	return h
}

func (h *BranchIfZero) ProposeValue(ValueID) Value { return InvalidValue }

// Label opens a serialized block and carries its phis and CFG edges.
type Label struct {
	base
	BlockNumber  int
	Predecessors []int
	Successors   []int
	Phis         []*Phi
}

func NewLabel(blockNumber int) *Label {
	return &Label{base: base{opcode: OpcodeLabel, value: InvalidValue}, BlockNumber: blockNumber}
}

func (h *Label) ProposeValue(ValueID) Value { return InvalidValue }

// MovesOnly is the padding-slot pseudo-op the resolver materializes to
// hold scheduled transfers on a control-flow edge.
type MovesOnly struct {
	base
}

func NewMoves() *MovesOnly {
	return &MovesOnly{base: base{opcode: OpcodeMoves, value: InvalidValue}}
}

func (h *MovesOnly) ProposeValue(ValueID) Value { return InvalidValue }

// DispatchSetupStack begins the six-op message send sequence.
type DispatchSetupStack struct {
	base
	SelectorValue            Value
	SelectorType             Value
	NumberOfArguments        int
	NumberOfKeywordArguments int
}

func NewDispatchSetupStack(selector, selectorType Value, numArgs, numKeyArgs int) *DispatchSetupStack {
	h := &DispatchSetupStack{base: base{opcode: OpcodeDispatchSetupStack, value: InvalidValue},
		SelectorValue: selector, SelectorType: selectorType,
		NumberOfArguments: numArgs, NumberOfKeywordArguments: numKeyArgs}
	h.addRead(selector)
	if selectorType.Valid() {
		h.addRead(selectorType)
	}
	return h
}

func (h *DispatchSetupStack) ProposeValue(ValueID) Value { return InvalidValue }

type DispatchStoreArg struct {
	base
	ArgumentNumber int
	ArgumentValue  Value
	ArgumentType   Value
}

func NewDispatchStoreArg(argNumber int, value, typeValue Value) *DispatchStoreArg {
	h := &DispatchStoreArg{base: base{opcode: OpcodeDispatchStoreArg, value: InvalidValue},
		ArgumentNumber: argNumber, ArgumentValue: value, ArgumentType: typeValue}
	h.addRead(value)
	if typeValue.Valid() {
		h.addRead(typeValue)
	}
	return h
}

func (h *DispatchStoreArg) ProposeValue(ValueID) Value { return InvalidValue }

type DispatchStoreKeyArg struct {
	base
	KeywordArgumentNumber int
	Keyword               Value
	KeywordType           Value
	KeywordValue          Value
	KeywordValueType      Value
}

func NewDispatchStoreKeyArg(keyArgNumber int, keyword, keywordType, value, valueType Value) *DispatchStoreKeyArg {
	h := &DispatchStoreKeyArg{base: base{opcode: OpcodeDispatchStoreKeyArg, value: InvalidValue},
		KeywordArgumentNumber: keyArgNumber, Keyword: keyword, KeywordType: keywordType,
		KeywordValue: value, KeywordValueType: valueType}
	h.addRead(keyword)
	h.addRead(value)
	if keywordType.Valid() {
		h.addRead(keywordType)
	}
	if valueType.Valid() {
		h.addRead(valueType)
	}
	return h
}

func (h *DispatchStoreKeyArg) ProposeValue(ValueID) Value { return InvalidValue }

// DispatchCall transfers to the dispatch trampoline. The serializer marks
// every register live across this instruction so the allocator preserves
// caller state.
type DispatchCall struct {
	base
}

func NewDispatchCall() *DispatchCall {
	return &DispatchCall{base: base{opcode: OpcodeDispatchCall, value: InvalidValue}}
}

func (h *DispatchCall) ProposeValue(ValueID) Value { return InvalidValue }

type DispatchLoadReturn struct {
	base
}

func NewDispatchLoadReturn() *DispatchLoadReturn {
	return &DispatchLoadReturn{base: base{opcode: OpcodeDispatchLoadReturn, value: InvalidValue}}
}

func (h *DispatchLoadReturn) ProposeValue(number ValueID) Value {
	h.value = Value{Number: number, TypeFlags: slot.TypeAny}
	return h.value
}

type DispatchLoadReturnType struct {
	base
}

func NewDispatchLoadReturnType() *DispatchLoadReturnType {
	return &DispatchLoadReturnType{base: base{opcode: OpcodeDispatchLoadReturnType, value: InvalidValue}}
}

func (h *DispatchLoadReturnType) ProposeValue(number ValueID) Value {
	h.value = Value{Number: number, TypeFlags: slot.TypeType}
	return h.value
}

type DispatchCleanup struct {
	base
}

func NewDispatchCleanup() *DispatchCleanup {
	return &DispatchCleanup{base: base{opcode: OpcodeDispatchCleanup, value: InvalidValue}}
}

func (h *DispatchCleanup) ProposeValue(ValueID) Value { return InvalidValue }
