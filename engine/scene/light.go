package scene

import (
	"encoding/binary"
	gomath "math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/navkagleb/benzin-sub001/engine/core"
	"github.com/navkagleb/benzin-sub001/engine/math"
)

type LightType uint32

const (
	LightTypeDirectional LightType = iota
	LightTypePoint
	LightTypeSpot
)

func (t LightType) String() string {
	switch t {
	case LightTypeDirectional:
		return "Directional"
	case LightTypePoint:
		return "Point"
	case LightTypeSpot:
		return "Spot"
	}
	return "Unknown"
}

// LightRecordSize is the size of one packed light: sixteen 32-bit words.
//
//	[0]      type
//	[1]      intensity
//	[2]      range
//	[3]      cone scale
//	[4:7]    color
//	[7]      cone offset
//	[8:11]   position
//	[12:15]  direction
const LightRecordSize = 64

// Light is one of DirectionalLight, PointLight or SpotLight.
type Light interface {
	Type() LightType
}

type DirectionalLight struct {
	Direction mgl32.Vec3
	Color     mgl32.Vec3
	Intensity float32
}

func (DirectionalLight) Type() LightType { return LightTypeDirectional }

// PointLight emits in every direction. A Range of zero or less is infinite.
type PointLight struct {
	Position  mgl32.Vec3
	Color     mgl32.Vec3
	Intensity float32
	Range     float32
}

func (PointLight) Type() LightType { return LightTypePoint }

// SpotLight cone angles are in radians and clamped to [0, pi/2].
type SpotLight struct {
	Position   mgl32.Vec3
	Direction  mgl32.Vec3
	Color      mgl32.Vec3
	Intensity  float32
	Range      float32
	InnerAngle float32
	OuterAngle float32
}

func (SpotLight) Type() LightType { return LightTypeSpot }

// coneScaleOffset turns the cone angles into the linear attenuation
// scale*cos(angle)+offset, 1 at the inner angle and 0 at the outer one.
func (l SpotLight) coneScaleOffset() (float32, float32) {
	inner := math.Clamp(float64(l.InnerAngle), 0, gomath.Pi/2-1e-6)
	outer := math.Clamp(float64(l.OuterAngle), inner+1e-6, gomath.Pi/2)
	cosInner, cosOuter := gomath.Cos(inner), gomath.Cos(outer)
	scale := 1 / (cosInner - cosOuter)
	return float32(scale), float32(-cosOuter * scale)
}

// PackLight writes l into dst, which must hold LightRecordSize bytes.
func PackLight(dst []byte, l Light) {
	core.Assert(len(dst) >= LightRecordSize, "len(dst) >= LightRecordSize", nil, "light record needs %d bytes, got %d", LightRecordSize, len(dst))

	var words [LightRecordSize / 4]float32
	var intensity, rng float32
	var color mgl32.Vec3
	switch l := l.(type) {
	case DirectionalLight:
		intensity, color = l.Intensity, l.Color
		copy(words[12:15], l.Direction[:])
	case PointLight:
		intensity, color, rng = l.Intensity, l.Color, l.Range
		copy(words[8:11], l.Position[:])
	case SpotLight:
		intensity, color, rng = l.Intensity, l.Color, l.Range
		words[3], words[7] = l.coneScaleOffset()
		copy(words[8:11], l.Position[:])
		copy(words[12:15], l.Direction[:])
	default:
		core.Fatal(nil, "unknown light %T", l)
	}
	words[1] = max(intensity, 0)
	words[2] = rng
	copy(words[4:7], color[:])

	binary.LittleEndian.PutUint32(dst, uint32(l.Type()))
	for i := 1; i < len(words); i++ {
		binary.LittleEndian.PutUint32(dst[i*4:], gomath.Float32bits(words[i]))
	}
}
