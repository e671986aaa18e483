package raw

import "testing"

func TestNumberIntAndFloatViews(t *testing.T) {
	n := NumberInt(7)
	if !n.IsInteger() || n.Int() != 7 || n.Float() != 7.0 {
		t.Fatalf("integer views wrong: %+v", n)
	}
	f := NumberFloat(2.5)
	if f.IsInteger() || f.Float() != 2.5 || f.Int() != 2 {
		t.Fatalf("float views wrong: %+v", f)
	}
}

func TestDictSetGetAndKeys(t *testing.T) {
	d := Dict()
	d.Set(NameLiteral("Type"), NameLiteral("Page"))
	d.Set(NameLiteral("Count"), NumberInt(3))

	v, ok := d.Get(NameLiteral("Type"))
	if !ok {
		t.Fatal("Type missing")
	}
	if name, _ := v.(NameObj); name.Val != "Page" {
		t.Fatalf("unexpected value %v", v)
	}
	if d.Len() != 2 || len(d.Keys()) != 2 {
		t.Fatalf("unexpected size %d", d.Len())
	}
}

func TestArrayBounds(t *testing.T) {
	a := NewArray(NumberInt(1), NumberInt(2))
	if _, ok := a.Get(2); ok {
		t.Fatal("out-of-range Get should fail")
	}
	a.Append(NumberInt(3))
	if a.Len() != 3 {
		t.Fatalf("append failed, len %d", a.Len())
	}
}

func TestRefIsIndirect(t *testing.T) {
	r := Ref(5, 0)
	if !r.IsIndirect() {
		t.Fatal("reference must be indirect")
	}
	if r.Ref().String() != "5 0 R" {
		t.Fatalf("formatting: %s", r.Ref())
	}
}

func TestHelpersTolerateNil(t *testing.T) {
	if DictGet(nil, "x") != nil {
		t.Fatal("nil dict should yield nil")
	}
	if got := IntFromDict(nil, "x", 9); got != 9 {
		t.Fatalf("default not applied: %d", got)
	}
}
