package ir

import (
	"encoding/json"
	"fmt"
)

// Expr is a sealed interface over expression nodes. Only Lit, Load, Bin,
// and Decode implement it.
type Expr interface {
	exprNode() // Sealed - only these types implement it
}

// Stmt is a sealed interface over statement nodes. Only Assign and Return
// implement it.
type Stmt interface {
	stmtNode() // Sealed - only these types implement it
}

// Lit is a literal scalar value carried as a storage word.
type Lit struct {
	Type ScalarType `json:"type"`
	Word Word       `json:"word"`
}

func (*Lit) exprNode() {}

// Load reads a variable. Index is nil for scalars; for arrays it selects
// one element, and decoding after rewrite happens per element at the
// indexed read, never eagerly for the whole array.
type Load struct {
	Var   string `json:"var"`
	Index Expr   `json:"index,omitempty"`
}

func (*Load) exprNode() {}

// Bin is a binary operation. Op is one of "add", "sub", "mul", "xor",
// "and", "or", "shl", "shr".
type Bin struct {
	Op string `json:"op"`
	L  Expr   `json:"l"`
	R  Expr   `json:"r"`
}

func (*Bin) exprNode() {}

// ValidBinOps defines allowed binary operators.
var ValidBinOps = map[string]bool{
	"add": true, "sub": true, "mul": true, "xor": true,
	"and": true, "or": true, "shl": true, "shr": true,
}

// Decode wraps a rewritten load with the inverse transform that restores
// the original value before surrounding computation consumes it.
//
// Exactly one of Layers or Routine is set: Layers is the inline form
// (decode steps applied in order), Routine names a shared DecoderSig in
// the enclosing unit. The two forms are observably equivalent; the split
// is a size/performance trade-off controlled by policy.
type Decode struct {
	Type    ScalarType `json:"type"`
	Layers  []Layer    `json:"layers,omitempty"`
	Routine string     `json:"routine,omitempty"`
	X       Expr       `json:"x"`
}

func (*Decode) exprNode() {}

// Assign stores an expression result into a variable (optionally indexed).
type Assign struct {
	Var   string `json:"var"`
	Index Expr   `json:"index,omitempty"`
	X     Expr   `json:"x"`
}

func (*Assign) stmtNode() {}

// Return yields a value from the enclosing function.
type Return struct {
	X Expr `json:"x"`
}

func (*Return) stmtNode() {}

// Tagged JSON encoding: every node serializes as an object with a "node"
// discriminator so the sealed interfaces survive a round trip.

type taggedNode struct {
	Node string `json:"node"`

	// Lit
	Type *ScalarType `json:"type,omitempty"`
	Word *Word       `json:"word,omitempty"`

	// Load / Assign
	Var   string          `json:"var,omitempty"`
	Index json.RawMessage `json:"index,omitempty"`

	// Bin
	Op string          `json:"op,omitempty"`
	L  json.RawMessage `json:"l,omitempty"`
	R  json.RawMessage `json:"r,omitempty"`

	// Decode
	Layers  []Layer `json:"layers,omitempty"`
	Routine string  `json:"routine,omitempty"`

	// Decode / Assign / Return
	X json.RawMessage `json:"x,omitempty"`
}

// MarshalExpr serializes an expression node with its discriminator tag.
func MarshalExpr(e Expr) ([]byte, error) {
	switch n := e.(type) {
	case *Lit:
		t := n.Type
		w := n.Word
		return marshalTagged(taggedNode{Node: "lit", Type: &t, Word: &w})
	case *Load:
		idx, err := marshalOptExpr(n.Index)
		if err != nil {
			return nil, err
		}
		return marshalTagged(taggedNode{Node: "load", Var: n.Var, Index: idx})
	case *Bin:
		l, err := MarshalExpr(n.L)
		if err != nil {
			return nil, err
		}
		r, err := MarshalExpr(n.R)
		if err != nil {
			return nil, err
		}
		return marshalTagged(taggedNode{Node: "bin", Op: n.Op, L: l, R: r})
	case *Decode:
		x, err := MarshalExpr(n.X)
		if err != nil {
			return nil, err
		}
		t := n.Type
		return marshalTagged(taggedNode{Node: "decode", Type: &t, Layers: n.Layers, Routine: n.Routine, X: x})
	default:
		return nil, fmt.Errorf("unknown Expr type: %T", e)
	}
}

// MarshalStmt serializes a statement node with its discriminator tag.
func MarshalStmt(s Stmt) ([]byte, error) {
	switch n := s.(type) {
	case *Assign:
		idx, err := marshalOptExpr(n.Index)
		if err != nil {
			return nil, err
		}
		x, err := MarshalExpr(n.X)
		if err != nil {
			return nil, err
		}
		return marshalTagged(taggedNode{Node: "assign", Var: n.Var, Index: idx, X: x})
	case *Return:
		x, err := MarshalExpr(n.X)
		if err != nil {
			return nil, err
		}
		return marshalTagged(taggedNode{Node: "return", X: x})
	default:
		return nil, fmt.Errorf("unknown Stmt type: %T", s)
	}
}

func marshalOptExpr(e Expr) (json.RawMessage, error) {
	if e == nil {
		return nil, nil
	}
	return MarshalExpr(e)
}

func marshalTagged(n taggedNode) ([]byte, error) {
	return json.Marshal(n)
}

// UnmarshalExpr decodes a tagged expression node.
func UnmarshalExpr(data []byte) (Expr, error) {
	var raw taggedNode
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	switch raw.Node {
	case "lit":
		if raw.Type == nil || raw.Word == nil {
			return nil, fmt.Errorf("lit node: missing type or word")
		}
		return &Lit{Type: *raw.Type, Word: *raw.Word}, nil
	case "load":
		idx, err := unmarshalOptExpr(raw.Index)
		if err != nil {
			return nil, fmt.Errorf("load index: %w", err)
		}
		return &Load{Var: raw.Var, Index: idx}, nil
	case "bin":
		l, err := UnmarshalExpr(raw.L)
		if err != nil {
			return nil, fmt.Errorf("bin l: %w", err)
		}
		r, err := UnmarshalExpr(raw.R)
		if err != nil {
			return nil, fmt.Errorf("bin r: %w", err)
		}
		if !ValidBinOps[raw.Op] {
			return nil, fmt.Errorf("bin: unknown op %q", raw.Op)
		}
		return &Bin{Op: raw.Op, L: l, R: r}, nil
	case "decode":
		if raw.Type == nil {
			return nil, fmt.Errorf("decode node: missing type")
		}
		x, err := UnmarshalExpr(raw.X)
		if err != nil {
			return nil, fmt.Errorf("decode x: %w", err)
		}
		return &Decode{Type: *raw.Type, Layers: raw.Layers, Routine: raw.Routine, X: x}, nil
	default:
		return nil, fmt.Errorf("unknown expr node %q", raw.Node)
	}
}

// UnmarshalStmt decodes a tagged statement node.
func UnmarshalStmt(data []byte) (Stmt, error) {
	var raw taggedNode
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	switch raw.Node {
	case "assign":
		idx, err := unmarshalOptExpr(raw.Index)
		if err != nil {
			return nil, fmt.Errorf("assign index: %w", err)
		}
		x, err := UnmarshalExpr(raw.X)
		if err != nil {
			return nil, fmt.Errorf("assign x: %w", err)
		}
		return &Assign{Var: raw.Var, Index: idx, X: x}, nil
	case "return":
		x, err := UnmarshalExpr(raw.X)
		if err != nil {
			return nil, fmt.Errorf("return x: %w", err)
		}
		return &Return{X: x}, nil
	default:
		return nil, fmt.Errorf("unknown stmt node %q", raw.Node)
	}
}

func unmarshalOptExpr(data json.RawMessage) (Expr, error) {
	if len(data) == 0 {
		return nil, nil
	}
	return UnmarshalExpr(data)
}

// MarshalJSON implements json.Marshaler for Func, routing Body through the
// tagged statement encoding.
func (f *Func) MarshalJSON() ([]byte, error) {
	body := make([]json.RawMessage, len(f.Body))
	for i, s := range f.Body {
		b, err := MarshalStmt(s)
		if err != nil {
			return nil, fmt.Errorf("func %s body[%d]: %w", f.Name, i, err)
		}
		body[i] = b
	}
	type alias struct {
		Name    string            `json:"name"`
		Locals  []*Variable       `json:"locals,omitempty"`
		Markers []Marker          `json:"markers,omitempty"`
		Body    []json.RawMessage `json:"body,omitempty"`
	}
	return json.Marshal(alias{Name: f.Name, Locals: f.Locals, Markers: f.Markers, Body: body})
}

// UnmarshalJSON implements json.Unmarshaler for Func.
func (f *Func) UnmarshalJSON(data []byte) error {
	type alias struct {
		Name    string            `json:"name"`
		Locals  []*Variable       `json:"locals,omitempty"`
		Markers []Marker          `json:"markers,omitempty"`
		Body    []json.RawMessage `json:"body,omitempty"`
	}
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	f.Name = a.Name
	f.Locals = a.Locals
	f.Markers = a.Markers
	f.Body = make([]Stmt, len(a.Body))
	for i, raw := range a.Body {
		s, err := UnmarshalStmt(raw)
		if err != nil {
			return fmt.Errorf("func %s body[%d]: %w", a.Name, i, err)
		}
		f.Body[i] = s
	}
	return nil
}
