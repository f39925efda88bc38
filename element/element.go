package element

// Dimensionality represents the spatial dimension of an element
type Dimensionality uint8

const (
	D2 Dimensionality = 2 // 2D elements (triangles)
)

// GeometryType identifies the shape of an element
type GeometryType uint8

const (
	Tri GeometryType = iota // Triangle
)

// ElementProperties contains metadata describing an element type
type ElementProperties struct {
	Name       string         // Full descriptive name
	ShortName  string         // Abbreviated name
	Type       GeometryType   // Element shape
	NVp        int            // Number of vertex nodes
	NDof       int            // Degrees of freedom per node
	NStrain    int            // Number of strain / stress components
	Dimensions Dimensionality // Spatial dimension
}

// CSTProperties describes the plane-stress constant-strain triangle
var CSTProperties = ElementProperties{
	Name:       "Constant Strain Triangle (plane stress)",
	ShortName:  "CST",
	Type:       Tri,
	NVp:        3,
	NDof:       2,
	NStrain:    3,
	Dimensions: D2,
}

// LocalDofs is the size of an element displacement / force vector
const LocalDofs = 6

// Properties returns the element type metadata
func (t *Triangle) Properties() ElementProperties { return CSTProperties }
