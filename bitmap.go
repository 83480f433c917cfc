package sdstore

import "math/bits"

// bitmap marks absent samples within a run, bit i for sample i.
type bitmap []uint64

func (b bitmap) get(i int) bool {
	w := i >> 6
	return w < len(b) && b[w]&(1<<(i&63)) != 0
}

func (b *bitmap) set(i int) {
	w := i >> 6
	for len(*b) <= w {
		*b = append(*b, 0)
	}
	(*b)[w] |= 1 << (i & 63)
}

func (b bitmap) count() int {
	var n int
	for _, w := range b {
		n += bits.OnesCount64(w)
	}
	return n
}

// trimmed drops trailing zero words.
func (b bitmap) trimmed() bitmap {
	n := len(b)
	for n > 0 && b[n-1] == 0 {
		n--
	}
	return b[:n]
}

// beyond reports whether any bit at index n or above is set.
func (b bitmap) beyond(n int) bool {
	for w := n >> 6; w < len(b); w++ {
		word := b[w]
		if w == n>>6 {
			word &^= 1<<(n&63) - 1
		}
		if word != 0 {
			return true
		}
	}
	return false
}
