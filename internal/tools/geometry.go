package tools

import (
	"fmt"

	"fcpd/internal/fudi"
	"fcpd/internal/microservices/tcp"
)

// matrixPlacement m00 m01 ... m33 -> Placement
//
// The 12 or 16 numbers of a row-major matrix come as loose numbers or as
// one list.
func matrixPlacement(srv *tcp.Server, words []string) (fudi.Value, error) {
	_, values, err := srv.Codec().PopValues(words[2:], fudi.All, true)
	if err != nil {
		return nil, err
	}
	if len(values) == 1 {
		if list, ok := values[0].(fudi.List); ok {
			values = list
		}
	}
	m := make([]float64, len(values))
	for i, v := range values {
		n, ok := fudi.Number(v)
		if !ok {
			return nil, fmt.Errorf("%w: matrix entry %d is %s", fudi.ErrMalformedValue, i, v.Kind())
		}
		m[i] = n
	}
	return fudi.PlacementFromMatrix(m)
}

// ypr2rpy Rotation -> roll pitch yaw in radians, fixed-axis x y z order
func yprToRPY(srv *tcp.Server, words []string) (fudi.Value, error) {
	v, _, err := srv.Codec().Decode(words[2:])
	if err != nil {
		return nil, err
	}
	r, err := rotationOf(v)
	if err != nil {
		return nil, err
	}
	roll, pitch, yaw := r.RollPitchYaw()
	return fudi.List{fudi.Float(roll), fudi.Float(pitch), fudi.Float(yaw)}, nil
}

func rotationOf(v fudi.Value) (fudi.Rotation, error) {
	switch val := v.(type) {
	case fudi.Rotation:
		return val, nil
	case fudi.Placement:
		return val.Rotation, nil
	}
	return fudi.Rotation{}, fmt.Errorf("%w: got %s", ErrNotGeometry, kindOf(v))
}

func placementOf(v fudi.Value) (fudi.Placement, error) {
	switch val := v.(type) {
	case fudi.Placement:
		return val, nil
	case fudi.Rotation:
		return fudi.Placement{Rotation: val}, nil
	case fudi.Vector:
		return fudi.Placement{Base: val}, nil
	}
	return fudi.Placement{}, fmt.Errorf("%w: got %s", ErrNotGeometry, kindOf(v))
}

func kindOf(v fudi.Value) string {
	if v == nil {
		return "nothing"
	}
	return v.Kind().String()
}

func twoRotations(srv *tcp.Server, words []string) (fudi.Rotation, fudi.Rotation, error) {
	_, values, err := srv.Codec().PopValues(words[2:], 2, false)
	if err != nil {
		return fudi.Rotation{}, fudi.Rotation{}, err
	}
	r1, err := rotationOf(values[0])
	if err != nil {
		return fudi.Rotation{}, fudi.Rotation{}, err
	}
	r2, err := rotationOf(values[1])
	if err != nil {
		return fudi.Rotation{}, fudi.Rotation{}, err
	}
	return r1, r2, nil
}

func twoPlacements(srv *tcp.Server, words []string) (fudi.Placement, fudi.Placement, error) {
	_, values, err := srv.Codec().PopValues(words[2:], 2, false)
	if err != nil {
		return fudi.Placement{}, fudi.Placement{}, err
	}
	p1, err := placementOf(values[0])
	if err != nil {
		return fudi.Placement{}, fudi.Placement{}, err
	}
	p2, err := placementOf(values[1])
	if err != nil {
		return fudi.Placement{}, fudi.Placement{}, err
	}
	return p1, p2, nil
}

// rotationadd R1 R2 -> R1*R2
func rotationAdd(srv *tcp.Server, words []string) (fudi.Value, error) {
	r1, r2, err := twoRotations(srv, words)
	if err != nil {
		return nil, err
	}
	return r1.Multiply(r2), nil
}

// rotationminus R1 R2 -> R1*R2^-1
func rotationMinus(srv *tcp.Server, words []string) (fudi.Value, error) {
	r1, r2, err := twoRotations(srv, words)
	if err != nil {
		return nil, err
	}
	return r1.Multiply(r2.Inverted()), nil
}

// placementadd P1 P2 -> P1*P2
func placementAdd(srv *tcp.Server, words []string) (fudi.Value, error) {
	p1, p2, err := twoPlacements(srv, words)
	if err != nil {
		return nil, err
	}
	return p1.Multiply(p2), nil
}

// placementminus P1 P2 -> P2^-1*P1
func placementMinus(srv *tcp.Server, words []string) (fudi.Value, error) {
	p1, p2, err := twoPlacements(srv, words)
	if err != nil {
		return nil, err
	}
	return p2.Inverse().Multiply(p1), nil
}
