package orggraph

import "iter"

const noParent = -1

// forest 是以下标寻址的森林，节点只增不删。
type forest struct {
	ids      []string
	parent   []int
	children [][]int
	index    map[string]int
}

func newForest() forest {
	return forest{index: make(map[string]int)}
}

func (f *forest) add(id string) int {
	i := len(f.ids)
	f.ids = append(f.ids, id)
	f.parent = append(f.parent, noParent)
	f.children = append(f.children, nil)
	f.index[id] = i
	return i
}

func (f *forest) lookup(id string) (int, bool) {
	i, ok := f.index[id]
	return i, ok
}

// createsCycle 判断把 i 挂到 p 下是否会让 i 成为自己的祖先。
func (f *forest) createsCycle(i, p int) bool {
	for cur := p; cur != noParent; cur = f.parent[cur] {
		if cur == i {
			return true
		}
	}
	return false
}

func (f *forest) setParent(i, p int) {
	if old := f.parent[i]; old != noParent {
		siblings := f.children[old]
		for k, c := range siblings {
			if c == i {
				f.children[old] = append(siblings[:k:k], siblings[k+1:]...)
				break
			}
		}
	}
	f.parent[i] = p
	if p != noParent {
		f.children[p] = append(f.children[p], i)
	}
}

func (f *forest) roots() []int {
	var out []int
	for i, p := range f.parent {
		if p == noParent {
			out = append(out, i)
		}
	}
	return out
}

// ancestors 自根向下产出 i 的祖先，不含 i 本身。
func (f *forest) ancestors(i int) iter.Seq[int] {
	return func(yield func(int) bool) {
		var chain []int
		for cur := f.parent[i]; cur != noParent; cur = f.parent[cur] {
			chain = append(chain, cur)
		}
		for k := len(chain) - 1; k >= 0; k-- {
			if !yield(chain[k]) {
				return
			}
		}
	}
}

// descendants 按广度优先产出 i 的后代，不含 i 本身。
func (f *forest) descendants(i int) iter.Seq[int] {
	return func(yield func(int) bool) {
		queue := append([]int(nil), f.children[i]...)
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			if !yield(cur) {
				return
			}
			queue = append(queue, f.children[cur]...)
		}
	}
}
