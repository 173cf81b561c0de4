package gpu

// Owned holds at most one handle together with the function that releases
// it. Destroy is the only teardown point and is safe to call repeatedly.
type Owned[H comparable] struct {
	handle  H
	destroy func(H)
	valid   bool
}

func Own[H comparable](h H, destroy func(H)) Owned[H] {
	var zero H
	return Owned[H]{handle: h, destroy: destroy, valid: h != zero}
}

func (o *Owned[H]) HasValue() bool {
	return o.valid
}

// Get returns the held handle, or the null handle when empty.
func (o *Owned[H]) Get() H {
	return o.handle
}

func (o *Owned[H]) Destroy() {
	if !o.valid {
		return
	}
	h := o.handle
	o.valid = false
	var zero H
	o.handle = zero
	if o.destroy != nil {
		o.destroy(h)
	}
}

// Replace destroys the current handle and takes ownership of h.
func (o *Owned[H]) Replace(h H, destroy func(H)) {
	o.Destroy()
	*o = Own(h, destroy)
}
