package formula

// node is a parsed formula expression. The tree is evaluated vectorized: each
// node produces either a scalar or a per-row series.
type node interface {
	nodeMarker()
}

type numberNode struct {
	value float64
}

type identNode struct {
	name   string
	quoted bool
	pos    int
}

type unaryNode struct {
	op   tokenKind // tokMinus or tokNot
	expr node
}

type binaryNode struct {
	op          tokenKind
	left, right node
}

type callNode struct {
	name string
	args []node
	pos  int
}

func (numberNode) nodeMarker() {}
func (identNode) nodeMarker()  {}
func (unaryNode) nodeMarker()  {}
func (binaryNode) nodeMarker() {}
func (callNode) nodeMarker()   {}
