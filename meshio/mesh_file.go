package meshio

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/notargets/tilefem/material"
	"github.com/notargets/tilefem/mesh"
	"github.com/notargets/tilefem/postprocess"
)

// tokenReader yields whitespace separated tokens, skipping '#' comments
type tokenReader struct {
	sc     *bufio.Scanner
	fields []string
	line   int
}

func newTokenReader(r io.Reader) *tokenReader {
	return &tokenReader{sc: bufio.NewScanner(r)}
}

// fill reads lines until a token is buffered, reporting false at the end
// of input
func (tr *tokenReader) fill() (bool, error) {
	for len(tr.fields) == 0 {
		if !tr.sc.Scan() {
			return false, tr.sc.Err()
		}
		tr.line++
		text := tr.sc.Text()
		if i := strings.IndexByte(text, '#'); i >= 0 {
			text = text[:i]
		}
		tr.fields = strings.Fields(text)
	}
	return true, nil
}

func (tr *tokenReader) next() (string, error) {
	ok, err := tr.fill()
	if err != nil {
		return "", err
	}
	if !ok {
		return "", io.ErrUnexpectedEOF
	}
	tok := tr.fields[0]
	tr.fields = tr.fields[1:]
	return tok, nil
}

func (tr *tokenReader) int(what string) (int, error) {
	tok, err := tr.next()
	if err != nil {
		return 0, fmt.Errorf("line %d: reading %s: %w", tr.line, what, err)
	}
	v, err := strconv.Atoi(tok)
	if err != nil {
		return 0, fmt.Errorf("line %d: %s: %w", tr.line, what, err)
	}
	return v, nil
}

func (tr *tokenReader) float(what string) (float64, error) {
	tok, err := tr.next()
	if err != nil {
		return 0, fmt.Errorf("line %d: reading %s: %w", tr.line, what, err)
	}
	v, err := strconv.ParseFloat(tok, 64)
	if err != nil {
		return 0, fmt.Errorf("line %d: %s: %w", tr.line, what, err)
	}
	return v, nil
}

// ReadMesh parses a tile in the node count / coordinates / element count /
// connectivity format:
//
//	N
//	x y      (N lines)
//	M
//	i j k    (M lines)
func ReadMesh(r io.Reader) (*mesh.Mesh, error) {
	tr := newTokenReader(r)
	nodes, elements, err := tr.tile()
	if err != nil {
		return nil, err
	}
	return mesh.New(nodes, elements, nil)
}

func (tr *tokenReader) tile() ([]mesh.Node, [][3]int, error) {
	n, err := tr.count("node count")
	if err != nil {
		return nil, nil, err
	}
	nodes := make([]mesh.Node, n)
	for i := range nodes {
		if nodes[i].X, err = tr.float(fmt.Sprintf("node %d x", i)); err != nil {
			return nil, nil, err
		}
		if nodes[i].Y, err = tr.float(fmt.Sprintf("node %d y", i)); err != nil {
			return nil, nil, err
		}
	}

	m, err := tr.count("element count")
	if err != nil {
		return nil, nil, err
	}
	elements := make([][3]int, m)
	for k := range elements {
		for c := 0; c < 3; c++ {
			if elements[k][c], err = tr.int(fmt.Sprintf("element %d node %d", k, c)); err != nil {
				return nil, nil, err
			}
		}
	}
	return nodes, elements, nil
}

func (tr *tokenReader) count(what string) (int, error) {
	n, err := tr.int(what)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("line %d: negative %s %d", tr.line, what, n)
	}
	return n, nil
}

// ReadModel parses a mesh carrying its own material and, optionally, its
// boundary conditions, as written by the Abaqus convertor:
//
//	ν E
//	N
//	x y          (N lines)
//	M
//	i j k        (M lines)
//	C            (optional)
//	node mask    (C lines, mask 1 = UX, 2 = UY, 3 = UXY)
//	L            (optional)
//	node fx fy   (L lines)
func ReadModel(r io.Reader) (*mesh.Mesh, material.Material, error) {
	tr := newTokenReader(r)
	var mat material.Material
	var err error
	if mat.PoissonRatio, err = tr.float("poisson ratio"); err != nil {
		return nil, mat, err
	}
	if mat.YoungModulus, err = tr.float("young modulus"); err != nil {
		return nil, mat, err
	}

	nodes, elements, err := tr.tile()
	if err != nil {
		return nil, mat, err
	}

	var constraints []mesh.Constraint
	if more, err := tr.fill(); err != nil {
		return nil, mat, err
	} else if more {
		c, err := tr.count("constraint count")
		if err != nil {
			return nil, mat, err
		}
		constraints = make([]mesh.Constraint, c)
		for i := range constraints {
			if constraints[i].Node, err = tr.int(fmt.Sprintf("constraint %d node", i)); err != nil {
				return nil, mat, err
			}
			mask, err := tr.int(fmt.Sprintf("constraint %d mask", i))
			if err != nil {
				return nil, mat, err
			}
			constraints[i].Mask = mesh.Mask(mask)
		}
	}

	m, err := mesh.New(nodes, elements, constraints)
	if err != nil {
		return nil, mat, err
	}

	if more, err := tr.fill(); err != nil {
		return nil, mat, err
	} else if more {
		l, err := tr.count("load count")
		if err != nil {
			return nil, mat, err
		}
		for i := 0; i < l; i++ {
			var ld Load
			if ld.Node, err = tr.int(fmt.Sprintf("load %d node", i)); err != nil {
				return nil, mat, err
			}
			if ld.Fx, err = tr.float(fmt.Sprintf("load %d fx", i)); err != nil {
				return nil, mat, err
			}
			if ld.Fy, err = tr.float(fmt.Sprintf("load %d fy", i)); err != nil {
				return nil, mat, err
			}
			if err := m.AddLoad(ld.Node, ld.Fx, ld.Fy); err != nil {
				return nil, mat, err
			}
		}
	}
	return m, mat, nil
}

// ReadModelFile reads a mesh with a material header from path
func ReadModelFile(path string) (*mesh.Mesh, material.Material, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, material.Material{}, err
	}
	defer f.Close()
	m, mat, err := ReadModel(f)
	if err != nil {
		return nil, mat, fmt.Errorf("%s: %w", path, err)
	}
	return m, mat, nil
}

// ReadMeshFile reads a tile from path
func ReadMeshFile(path string) (*mesh.Mesh, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	m, err := ReadMesh(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

func writeMesh(w io.Writer, m *mesh.Mesh, u []float64) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "%d\n", m.NumNodes())
	for i, n := range m.Nodes {
		x, y := n.X, n.Y
		if u != nil {
			x += u[2*i]
			y += u[2*i+1]
		}
		fmt.Fprintf(bw, "%s %s\n", formatFloat(x), formatFloat(y))
	}
	fmt.Fprintf(bw, "%d\n", len(m.Elements))
	for _, el := range m.Elements {
		fmt.Fprintf(bw, "%d %d %d\n", el.Nodes[0], el.Nodes[1], el.Nodes[2])
	}
	return bw.Flush()
}

// WriteMesh writes m in the format read by ReadMesh
func WriteMesh(w io.Writer, m *mesh.Mesh) error {
	return writeMesh(w, m, nil)
}

// WriteDeformed writes m with every node moved by its displacement. Free
// nodes are written too so element indices stay valid.
func WriteDeformed(w io.Writer, m *mesh.Mesh, u []float64) error {
	if len(u) != m.NumDofs() {
		return fmt.Errorf("displacement vector has length %d, mesh has %d dofs", len(u), m.NumDofs())
	}
	return writeMesh(w, m, u)
}

// WriteResults writes the 2N displacement components, one per line,
// followed by one von Mises stress per element
func WriteResults(w io.Writer, u []float64, stresses []postprocess.Stress) error {
	bw := bufio.NewWriter(w)
	for _, v := range u {
		fmt.Fprintln(bw, formatFloat(v))
	}
	for _, s := range stresses {
		fmt.Fprintln(bw, formatFloat(s.VonMises))
	}
	return bw.Flush()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
