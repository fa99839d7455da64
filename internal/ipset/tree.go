package ipset

// node is an AVL-balanced interval tree node over IPv4 addresses as uint32.
type node struct {
	start, end  uint32
	maxEnd      uint32
	left, right *node
	height      int
}

func height(n *node) int {
	if n == nil {
		return 0
	}
	return n.height
}

func balance(n *node) int {
	if n == nil {
		return 0
	}
	return height(n.left) - height(n.right)
}

func update(n *node) {
	n.height = max(height(n.left), height(n.right)) + 1
	n.maxEnd = n.end
	if n.left != nil && n.left.maxEnd > n.maxEnd {
		n.maxEnd = n.left.maxEnd
	}
	if n.right != nil && n.right.maxEnd > n.maxEnd {
		n.maxEnd = n.right.maxEnd
	}
}

func rotateRight(y *node) *node {
	x := y.left
	y.left = x.right
	x.right = y
	update(y)
	update(x)
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	x.right = y.left
	y.left = x
	update(x)
	update(y)
	return y
}

func insert(n *node, start, end uint32) *node {
	if n == nil {
		return &node{start: start, end: end, maxEnd: end, height: 1}
	}
	if start < n.start {
		n.left = insert(n.left, start, end)
	} else {
		n.right = insert(n.right, start, end)
	}
	update(n)

	bf := balance(n)
	switch {
	case bf > 1 && start < n.left.start:
		return rotateRight(n)
	case bf < -1 && start >= n.right.start:
		return rotateLeft(n)
	case bf > 1:
		n.left = rotateLeft(n.left)
		return rotateRight(n)
	case bf < -1:
		n.right = rotateRight(n.right)
		return rotateLeft(n)
	}
	return n
}

func contains(n *node, v uint32) bool {
	for n != nil {
		if v > n.maxEnd {
			return false
		}
		if v >= n.start && v <= n.end {
			return true
		}
		if n.left != nil && n.left.maxEnd >= v && contains(n.left, v) {
			return true
		}
		n = n.right
	}
	return false
}
