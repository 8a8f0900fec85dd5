// Package compiler implements Lox's single-pass compiler: a Pratt parser
// that emits bytecode directly into a lang/chunk.Chunk as it recognizes
// each expression and statement, with no intermediate AST. Its structure
// follows the teacher's asm.go/opcode.go conventions (constant pools,
// stack-picture opcode comments) and, for the single-pass parsing itself,
// the reference Go port of clox under other_examples/rami3l-golox, since
// the teacher's own compiler works from a resolved AST instead.
package compiler

import (
	"fmt"
	"math"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	"github.com/loxlang/loxvm/lang/chunk"
	"github.com/loxlang/loxvm/lang/debug"
	"github.com/loxlang/loxvm/lang/scanner"
	"github.com/loxlang/loxvm/lang/token"
	"github.com/loxlang/loxvm/lang/value"
)

// FuncType distinguishes compiling a function body from compiling the
// top-level script, since a `return` statement is only allowed inside a
// function body.
type FuncType int

const (
	TypeFunction FuncType = iota
	TypeScript
)

const maxLocals = math.MaxUint8 + 1
const maxParams = math.MaxUint8

// uninitialized marks a local whose initializer has not finished
// compiling yet, so that reading it in `var x = x;` inside a block is
// reported as a compile error instead of reading the slot itself.
const uninitialized = -1

type local struct {
	name  token.Token
	depth int
}

// funcState is the compile-time state for one function body (or the
// top-level script): the function object being assembled, the stack of
// locals currently in scope, and a link to the enclosing function's
// state, so that compiling a nested `fun` declaration is just pushing and
// popping one of these.
type funcState struct {
	enclosing  *funcState
	function   *chunk.Function
	funcType   FuncType
	locals     []local
	scopeDepth int
}

func newFuncState(enclosing *funcState, funcType FuncType, name *value.ObjString) *funcState {
	return &funcState{
		enclosing: enclosing,
		function:  &chunk.Function{Name: name},
		funcType:  funcType,
		// Slot 0 is reserved for the function being called itself (its
		// receiver, in a language with methods); it is never addressed by
		// name, so its Token is the zero value.
		locals: []local{{}},
	}
}

// Parser holds all compiler state for a single source string: the token
// stream, the chain of in-progress function compilations, the heap used
// to intern string constants, and accumulated diagnostics.
type Parser struct {
	scanner *scanner.Scanner
	heap    *value.Heap

	prev, curr token.Token
	current    *funcState

	errors    *multierror.Error
	panicMode bool
}

// New returns a Parser that interns string constants (identifiers and
// string literals) on heap.
func New(heap *value.Heap) *Parser {
	return &Parser{heap: heap}
}

// Compile compiles source as a top-level script and returns the resulting
// function (callable with zero arguments) along with every compile error
// found; unlike a fail-fast parser, compilation continues past an error by
// synchronizing at the next statement boundary, so a single Compile call
// can report more than one mistake.
func (p *Parser) Compile(source string) (*chunk.Function, error) {
	var s scanner.Scanner
	s.Init(source)
	p.scanner = &s
	p.current = newFuncState(nil, TypeScript, nil)
	p.errors = nil
	p.panicMode = false

	p.advance()
	for !p.match(token.EOF) {
		p.declaration()
	}
	fn := p.endCompiler()
	return fn, p.errors.ErrorOrNil()
}

/* declarations and statements */

func (p *Parser) declaration() {
	switch {
	case p.match(token.FUN):
		p.funDeclaration()
	case p.match(token.VAR):
		p.varDeclaration()
	default:
		p.statement()
	}
	if p.panicMode {
		p.synchronize()
	}
}

func (p *Parser) funDeclaration() {
	global := p.parseVariable("Expect function name.")
	p.markInitialized()
	p.function(TypeFunction)
	p.defineVariable(global)
}

func (p *Parser) function(funcType FuncType) {
	name := p.heap.Intern(p.prev.Lexeme)
	p.current = newFuncState(p.current, funcType, name)
	p.beginScope()

	p.consume(token.LPAREN, "Expect '(' after function name.")
	if !p.check(token.RPAREN) {
		for {
			p.current.function.Arity++
			if p.current.function.Arity > maxParams {
				p.errorAtCurrent("Can't have more than 255 parameters.")
			}
			constant := p.parseVariable("Expect parameter name.")
			p.defineVariable(constant)
			if !p.match(token.COMMA) {
				break
			}
		}
	}
	p.consume(token.RPAREN, "Expect ')' after parameters.")
	p.consume(token.LBRACE, "Expect '{' before function body.")
	p.block()

	fn := p.endCompiler()
	p.emitConstant(fn)
}

func (p *Parser) varDeclaration() {
	global := p.parseVariable("Expect variable name.")
	if p.match(token.EQ) {
		p.expression()
	} else {
		p.emitByte(byte(chunk.OpNil))
	}
	p.consume(token.SEMICOLON, "Expect ';' after variable declaration.")
	p.defineVariable(global)
}

func (p *Parser) statement() {
	switch {
	case p.match(token.PRINT):
		p.printStatement()
	case p.match(token.FOR):
		p.forStatement()
	case p.match(token.IF):
		p.ifStatement()
	case p.match(token.RETURN):
		p.returnStatement()
	case p.match(token.WHILE):
		p.whileStatement()
	case p.match(token.LBRACE):
		p.beginScope()
		p.block()
		p.endScope()
	default:
		p.expressionStatement()
	}
}

func (p *Parser) printStatement() {
	p.expression()
	p.consume(token.SEMICOLON, "Expect ';' after value.")
	p.emitByte(byte(chunk.OpPrint))
}

func (p *Parser) returnStatement() {
	if p.current.funcType == TypeScript {
		p.error("Can't return from top-level code.")
	}
	if p.match(token.SEMICOLON) {
		p.emitReturn()
		return
	}
	p.expression()
	p.consume(token.SEMICOLON, "Expect ';' after return value.")
	p.emitByte(byte(chunk.OpReturn))
}

// ifStatement follows the teacher's stack-picture style of leaving the
// jump target unresolved until the branch it guards has been compiled:
// emit a placeholder JUMP_IF_FALSE, compile the "then" arm, then backfill
// the jump offset once the real length of that arm is known.
func (p *Parser) ifStatement() {
	p.consume(token.LPAREN, "Expect '(' after 'if'.")
	p.expression()
	p.consume(token.RPAREN, "Expect ')' after condition.")

	thenJump := p.emitJump(chunk.OpJumpIfFalse)
	p.emitByte(byte(chunk.OpPop))
	p.statement()

	elseJump := p.emitJump(chunk.OpJump)
	p.patchJump(thenJump)
	p.emitByte(byte(chunk.OpPop))

	if p.match(token.ELSE) {
		p.statement()
	}
	p.patchJump(elseJump)
}

func (p *Parser) whileStatement() {
	loopStart := len(p.currentChunk().Code)
	p.consume(token.LPAREN, "Expect '(' after 'while'.")
	p.expression()
	p.consume(token.RPAREN, "Expect ')' after condition.")

	exitJump := p.emitJump(chunk.OpJumpIfFalse)
	p.emitByte(byte(chunk.OpPop))
	p.statement()
	p.emitLoop(loopStart)

	p.patchJump(exitJump)
	p.emitByte(byte(chunk.OpPop))
}

// forStatement desugars `for (init; cond; incr) body` into the while
// primitive at compile time: no FOR opcode exists, matching the clox
// design (see other_examples/rami3l-golox's forStmt, a faithful port of
// the same desugaring).
func (p *Parser) forStatement() {
	p.beginScope()
	defer p.endScope()

	p.consume(token.LPAREN, "Expect '(' after 'for'.")
	switch {
	case p.match(token.SEMICOLON):
		// no initializer
	case p.match(token.VAR):
		p.varDeclaration()
	default:
		p.expressionStatement()
	}

	loopStart := len(p.currentChunk().Code)
	exitJump := -1
	if !p.check(token.SEMICOLON) {
		p.expression()
		p.consume(token.SEMICOLON, "Expect ';' after loop condition.")
		exitJump = p.emitJump(chunk.OpJumpIfFalse)
		p.emitByte(byte(chunk.OpPop))
	} else {
		p.advance() // consume the ';'
	}

	if !p.check(token.RPAREN) {
		bodyJump := p.emitJump(chunk.OpJump)
		incrementStart := len(p.currentChunk().Code)
		p.expression()
		p.emitByte(byte(chunk.OpPop))
		p.consume(token.RPAREN, "Expect ')' after for clauses.")

		p.emitLoop(loopStart)
		loopStart = incrementStart
		p.patchJump(bodyJump)
	} else {
		p.advance() // consume the ')'
	}

	p.statement()
	p.emitLoop(loopStart)

	if exitJump != -1 {
		p.patchJump(exitJump)
		p.emitByte(byte(chunk.OpPop))
	}
}

func (p *Parser) block() {
	for !p.check(token.RBRACE) && !p.check(token.EOF) {
		p.declaration()
	}
	p.consume(token.RBRACE, "Expect '}' after block.")
}

func (p *Parser) expressionStatement() {
	p.expression()
	p.consume(token.SEMICOLON, "Expect ';' after expression.")
	p.emitByte(byte(chunk.OpPop))
}

func (p *Parser) expression() { p.parsePrecedence(PrecAssignment) }

/* scopes and variables */

func (p *Parser) beginScope() { p.current.scopeDepth++ }

func (p *Parser) endScope() {
	p.current.scopeDepth--
	locals := p.current.locals
	for len(locals) > 0 && locals[len(locals)-1].depth > p.current.scopeDepth {
		p.emitByte(byte(chunk.OpPop))
		locals = locals[:len(locals)-1]
	}
	p.current.locals = locals
}

// parseVariable consumes the identifier token for a declaration and
// returns its constant-pool index, or 0 (ignored by defineVariable) when
// the variable is local: locals aren't looked up by name at runtime, they
// just live at a known stack slot.
func (p *Parser) parseVariable(errMsg string) byte {
	p.consume(token.IDENT, errMsg)
	p.declareVariable()
	if p.current.scopeDepth > 0 {
		return 0
	}
	return p.identifierConstant(p.prev)
}

func (p *Parser) identifierConstant(name token.Token) byte {
	return p.makeConstant(p.heap.Intern(name.Lexeme))
}

func (p *Parser) declareVariable() {
	if p.current.scopeDepth == 0 {
		return
	}
	name := p.prev
	locals := p.current.locals
	for i := len(locals) - 1; i >= 0; i-- {
		l := locals[i]
		if l.depth != uninitialized && l.depth < p.current.scopeDepth {
			break
		}
		if l.name.Lexeme == name.Lexeme {
			p.error("Already a variable with this name in this scope.")
		}
	}
	p.addLocal(name)
}

func (p *Parser) addLocal(name token.Token) {
	if len(p.current.locals) >= maxLocals {
		p.error("Too many local variables in function.")
		return
	}
	p.current.locals = append(p.current.locals, local{name: name, depth: uninitialized})
}

func (p *Parser) markInitialized() {
	if p.current.scopeDepth == 0 {
		return
	}
	p.current.locals[len(p.current.locals)-1].depth = p.current.scopeDepth
}

func (p *Parser) defineVariable(global byte) {
	if p.current.scopeDepth > 0 {
		p.markInitialized()
		return
	}
	p.emitBytes(byte(chunk.OpDefineGlobal), global)
}

func (p *Parser) resolveLocal(fs *funcState, name token.Token) int {
	for i := len(fs.locals) - 1; i >= 0; i-- {
		l := fs.locals[i]
		if l.name.Lexeme == name.Lexeme {
			if l.depth == uninitialized {
				p.error("Can't read local variable in its own initializer.")
			}
			return i
		}
	}
	return uninitialized
}

/* expressions: prefix and infix parse functions */

func (p *Parser) number(_ bool) {
	var f float64
	if _, err := fmt.Sscanf(p.prev.Lexeme, "%g", &f); err != nil {
		p.error("Invalid number literal.")
		return
	}
	p.emitConstant(value.Number(f))
}

func (p *Parser) stringLit(_ bool) {
	// The lexeme still carries its surrounding quotes; spec.md calls for no
	// escape-sequence processing, so the content between them is copied
	// verbatim into the intern table.
	raw := p.prev.Lexeme
	content := raw[1 : len(raw)-1]
	p.emitConstant(p.heap.Intern(content))
}

func (p *Parser) literal(_ bool) {
	switch p.prev.Type {
	case token.FALSE:
		p.emitByte(byte(chunk.OpFalse))
	case token.TRUE:
		p.emitByte(byte(chunk.OpTrue))
	case token.NIL:
		p.emitByte(byte(chunk.OpNil))
	}
}

func (p *Parser) grouping(_ bool) {
	p.expression()
	p.consume(token.RPAREN, "Expect ')' after expression.")
}

func (p *Parser) unary(_ bool) {
	opType := p.prev.Type
	p.parsePrecedence(PrecUnary)
	switch opType {
	case token.BANG:
		p.emitByte(byte(chunk.OpNot))
	case token.MINUS:
		p.emitByte(byte(chunk.OpNegate))
	}
}

func (p *Parser) binary(_ bool) {
	opType := p.prev.Type
	rule := ruleFor(opType)
	p.parsePrecedence(rule.prec + 1)

	switch opType {
	case token.BANGEQ:
		p.emitBytes(byte(chunk.OpEqual), byte(chunk.OpNot))
	case token.EQEQ:
		p.emitByte(byte(chunk.OpEqual))
	case token.GT:
		p.emitByte(byte(chunk.OpGreater))
	case token.GTEQ:
		p.emitBytes(byte(chunk.OpLess), byte(chunk.OpNot))
	case token.LT:
		p.emitByte(byte(chunk.OpLess))
	case token.LTEQ:
		p.emitBytes(byte(chunk.OpGreater), byte(chunk.OpNot))
	case token.PLUS:
		p.emitByte(byte(chunk.OpAdd))
	case token.MINUS:
		p.emitByte(byte(chunk.OpSubtract))
	case token.STAR:
		p.emitByte(byte(chunk.OpMultiply))
	case token.SLASH:
		p.emitByte(byte(chunk.OpDivide))
	}
}

// and_ and or_ short-circuit by jumping over the RHS instead of emitting a
// boolean opcode: the jump patterns match
// other_examples/rami3l-golox's and/or.
func (p *Parser) and_(_ bool) {
	endJump := p.emitJump(chunk.OpJumpIfFalse)
	p.emitByte(byte(chunk.OpPop))
	p.parsePrecedence(PrecAnd)
	p.patchJump(endJump)
}

func (p *Parser) or_(_ bool) {
	elseJump := p.emitJump(chunk.OpJumpIfFalse)
	thenJump := p.emitJump(chunk.OpJump)
	p.patchJump(elseJump)
	p.emitByte(byte(chunk.OpPop))
	p.parsePrecedence(PrecOr)
	p.patchJump(thenJump)
}

func (p *Parser) call(_ bool) {
	argCount := p.argumentList()
	p.emitBytes(byte(chunk.OpCall), argCount)
}

func (p *Parser) argumentList() byte {
	var count int
	if !p.check(token.RPAREN) {
		for {
			p.expression()
			if count == math.MaxUint8 {
				p.error("Can't have more than 255 arguments.")
			}
			count++
			if !p.match(token.COMMA) {
				break
			}
		}
	}
	p.consume(token.RPAREN, "Expect ')' after arguments.")
	return byte(count)
}

func (p *Parser) variable(canAssign bool) { p.namedVariable(p.prev, canAssign) }

func (p *Parser) namedVariable(name token.Token, canAssign bool) {
	var getOp, setOp chunk.Op
	arg := p.resolveLocal(p.current, name)
	if arg != uninitialized {
		getOp, setOp = chunk.OpGetLocal, chunk.OpSetLocal
	} else {
		arg = int(p.identifierConstant(name))
		getOp, setOp = chunk.OpGetGlobal, chunk.OpSetGlobal
	}

	if canAssign && p.match(token.EQ) {
		p.expression()
		p.emitBytes(byte(setOp), byte(arg))
	} else {
		p.emitBytes(byte(getOp), byte(arg))
	}
}

/* Pratt parser driver */

// Precedence orders binding strength from loosest to tightest, matching
// spec.md's precedence table exactly.
type Precedence int

const (
	PrecNone Precedence = iota
	PrecAssignment
	PrecOr
	PrecAnd
	PrecEquality
	PrecComparison
	PrecTerm
	PrecFactor
	PrecUnary
	PrecCall
	PrecPrimary
)

type parseFn func(p *Parser, canAssign bool)

type parseRule struct {
	prefix, infix parseFn
	prec          Precedence
}

var rules = map[token.Type]parseRule{
	token.LPAREN:    {(*Parser).grouping, (*Parser).call, PrecCall},
	token.MINUS:     {(*Parser).unary, (*Parser).binary, PrecTerm},
	token.PLUS:      {nil, (*Parser).binary, PrecTerm},
	token.SLASH:     {nil, (*Parser).binary, PrecFactor},
	token.STAR:      {nil, (*Parser).binary, PrecFactor},
	token.BANG:      {(*Parser).unary, nil, PrecNone},
	token.BANGEQ:    {nil, (*Parser).binary, PrecEquality},
	token.EQEQ:      {nil, (*Parser).binary, PrecEquality},
	token.GT:        {nil, (*Parser).binary, PrecComparison},
	token.GTEQ:      {nil, (*Parser).binary, PrecComparison},
	token.LT:        {nil, (*Parser).binary, PrecComparison},
	token.LTEQ:      {nil, (*Parser).binary, PrecComparison},
	token.IDENT:     {(*Parser).variable, nil, PrecNone},
	token.STRING:    {(*Parser).stringLit, nil, PrecNone},
	token.NUMBER:    {(*Parser).number, nil, PrecNone},
	token.AND:       {nil, (*Parser).and_, PrecAnd},
	token.OR:        {nil, (*Parser).or_, PrecOr},
	token.FALSE:     {(*Parser).literal, nil, PrecNone},
	token.TRUE:      {(*Parser).literal, nil, PrecNone},
	token.NIL:       {(*Parser).literal, nil, PrecNone},
}

func ruleFor(t token.Type) parseRule {
	if r, ok := rules[t]; ok {
		return r
	}
	return parseRule{prec: PrecNone}
}

func (p *Parser) parsePrecedence(prec Precedence) {
	p.advance()
	prefix := ruleFor(p.prev.Type).prefix
	if prefix == nil {
		p.error("Expect expression.")
		return
	}
	canAssign := prec <= PrecAssignment
	prefix(p, canAssign)

	for prec <= ruleFor(p.curr.Type).prec {
		p.advance()
		infix := ruleFor(p.prev.Type).infix
		infix(p, canAssign)
	}

	if canAssign && p.match(token.EQ) {
		p.error("Invalid assignment target.")
	}
}

/* token stream helpers */

func (p *Parser) advance() {
	p.prev = p.curr
	for {
		p.curr = p.scanner.Scan()
		if p.curr.Type != token.ILLEGAL {
			break
		}
		p.errorAtCurrent(p.curr.Lexeme)
	}
}

func (p *Parser) check(t token.Type) bool { return p.curr.Type == t }

func (p *Parser) match(t token.Type) bool {
	if !p.check(t) {
		return false
	}
	p.advance()
	return true
}

func (p *Parser) consume(t token.Type, errMsg string) {
	if p.curr.Type == t {
		p.advance()
		return
	}
	p.errorAtCurrent(errMsg)
}

/* bytecode emission */

func (p *Parser) currentChunk() *chunk.Chunk { return &p.current.function.Chunk }

func (p *Parser) emitByte(b byte) {
	p.currentChunk().Write(b, p.prev.Line)
}

func (p *Parser) emitBytes(a, b byte) {
	p.emitByte(a)
	p.emitByte(b)
}

func (p *Parser) emitReturn() {
	p.emitBytes(byte(chunk.OpNil), byte(chunk.OpReturn))
}

// makeConstant adds v to the current chunk's constant pool and returns its
// index as a single byte, for callers whose opcode only has an 8-bit
// operand (the global-variable opcodes, which have no _LONG variant).
func (p *Parser) makeConstant(v value.Value) byte {
	idx := p.currentChunk().AddConstant(v)
	if idx > math.MaxUint8 {
		p.error("Too many constants in one chunk.")
		return 0
	}
	return byte(idx)
}

// maxConstantsLong is the largest constant-pool index a 24-bit
// CONSTANT_LONG operand can address.
const maxConstantsLong = 1<<24 - 1

// emitConstant adds v to the current chunk's constant pool and emits
// CONSTANT with an 8-bit operand, or CONSTANT_LONG with a 24-bit
// little-endian operand once the pool grows past 256 entries.
func (p *Parser) emitConstant(v value.Value) {
	idx := p.currentChunk().AddConstant(v)
	switch {
	case idx <= math.MaxUint8:
		p.emitBytes(byte(chunk.OpConstant), byte(idx))
	case idx <= maxConstantsLong:
		p.emitByte(byte(chunk.OpConstantLong))
		p.emitByte(byte(idx & 0xff))
		p.emitByte(byte(idx >> 8 & 0xff))
		p.emitByte(byte(idx >> 16 & 0xff))
	default:
		p.error("Too many constants in one chunk.")
	}
}

// emitJump writes a jump instruction with a placeholder 16-bit operand and
// returns the operand's offset, to be backfilled by patchJump once the
// jump's destination is known.
func (p *Parser) emitJump(op chunk.Op) int {
	p.emitByte(byte(op))
	p.emitByte(0xff)
	p.emitByte(0xff)
	return len(p.currentChunk().Code) - 2
}

func (p *Parser) patchJump(offset int) {
	code := p.currentChunk().Code
	jump := len(code) - offset - 2
	if jump > math.MaxUint16 {
		p.error("Too much code to jump over.")
		return
	}
	code[offset] = byte(jump & 0xff)
	code[offset+1] = byte(jump >> 8 & 0xff)
}

func (p *Parser) emitLoop(loopStart int) {
	p.emitByte(byte(chunk.OpLoop))
	offset := len(p.currentChunk().Code) - loopStart + 2
	if offset > math.MaxUint16 {
		p.error("Loop body too large.")
		return
	}
	p.emitByte(byte(offset & 0xff))
	p.emitByte(byte(offset >> 8 & 0xff))
}

func (p *Parser) endCompiler() *chunk.Function {
	p.emitReturn()
	fn := p.current.function
	if logrus.IsLevelEnabled(logrus.DebugLevel) {
		name := "<script>"
		if fn.Name != nil {
			name = fn.Name.Chars()
		}
		logrus.WithField("function", name).Debugln(debug.Disassemble(&fn.Chunk, name))
	}
	p.current = p.current.enclosing
	return fn
}

/* error handling */

func (p *Parser) errorAtCurrent(msg string) { p.errorAt(p.curr, msg) }
func (p *Parser) error(msg string)          { p.errorAt(p.prev, msg) }

func (p *Parser) errorAt(t token.Token, msg string) {
	if p.panicMode {
		return
	}
	p.panicMode = true

	var where string
	switch t.Type {
	case token.EOF:
		where = " at end"
	case token.ILLEGAL:
		where = ""
	default:
		where = fmt.Sprintf(" at '%s'", t.Lexeme)
	}
	p.errors = multierror.Append(p.errors, fmt.Errorf("[line %d] Error%s: %s", t.Line, where, msg))
}

// synchronize discards tokens until it reaches one that plausibly starts a
// new statement, so a single Compile call can keep parsing (and keep
// finding errors) after the first one.
func (p *Parser) synchronize() {
	p.panicMode = false
	for p.curr.Type != token.EOF {
		if p.prev.Type == token.SEMICOLON {
			return
		}
		switch p.curr.Type {
		case token.CLASS, token.FUN, token.VAR, token.FOR, token.IF, token.WHILE, token.PRINT, token.RETURN:
			return
		}
		p.advance()
	}
}
