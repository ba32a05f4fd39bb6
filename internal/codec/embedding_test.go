package codec

import "testing"

func TestRoundTripF32_512(t *testing.T) {
	v := make([]float32, 512)
	for i := range v {
		v[i] = float32(i) * 0.125
	}
	data := EncodeF32(v)
	if len(data) != 2048 {
		t.Fatalf("encoded length = %d, want 2048", len(data))
	}
	got, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ElemType != F32 || got.Dim != 512 {
		t.Fatalf("got elemType=%v dim=%d, want f32/512", got.ElemType, got.Dim)
	}
	for i := range v {
		if got.F32[i] != v[i] {
			t.Fatalf("index %d: got %v want %v", i, got.F32[i], v[i])
		}
	}
}

func TestRoundTripF64_128(t *testing.T) {
	v := make([]float64, 128)
	for i := range v {
		v[i] = float64(i) * 0.0625
	}
	data := EncodeF64(v)
	if len(data) != 1024 {
		t.Fatalf("encoded length = %d, want 1024", len(data))
	}
	got, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ElemType != F64 || got.Dim != 128 {
		t.Fatalf("got elemType=%v dim=%d, want f64/128", got.ElemType, got.Dim)
	}
	for i := range v {
		if got.F64[i] != v[i] {
			t.Fatalf("index %d: got %v want %v", i, got.F64[i], v[i])
		}
	}
}

func TestRoundTripF32_128(t *testing.T) {
	v := make([]float32, 128)
	for i := range v {
		v[i] = float32(i) * -0.5
	}
	data := EncodeF32(v)
	if len(data) != 512 {
		t.Fatalf("encoded length = %d, want 512", len(data))
	}
	got, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ElemType != F32 || got.Dim != 128 {
		t.Fatalf("got elemType=%v dim=%d, want f32/128", got.ElemType, got.Dim)
	}
	for i := range v {
		if got.F32[i] != v[i] {
			t.Fatalf("index %d: got %v want %v", i, got.F32[i], v[i])
		}
	}
}

func TestDecodeUnsupportedLength(t *testing.T) {
	_, err := Decode(make([]byte, 99))
	if err == nil {
		t.Fatal("expected error for unsupported byte length")
	}
	if _, ok := err.(ErrUnsupportedLength); !ok {
		t.Fatalf("got error type %T, want ErrUnsupportedLength", err)
	}
}

func TestOriginOf(t *testing.T) {
	cases := []struct {
		byteLen int
		want    Origin
	}{
		{2048, OriginArcFace},
		{1024, OriginLegacy128},
		{512, OriginBrowser},
		{99, ""},
	}
	for _, c := range cases {
		if got := OriginOf(c.byteLen); got != c.want {
			t.Errorf("OriginOf(%d) = %q, want %q", c.byteLen, got, c.want)
		}
	}
}

func TestNormalize(t *testing.T) {
	v := []float32{3, 4}
	Normalize(v)
	if approxEqual(float64(v[0]), 0.6) == false || approxEqual(float64(v[1]), 0.8) == false {
		t.Fatalf("got %v, want [0.6 0.8]", v)
	}
}

func approxEqual(a, b float64) bool {
	const eps = 1e-6
	d := a - b
	if d < 0 {
		d = -d
	}
	return d < eps
}
