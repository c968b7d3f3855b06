package resume

// Dynamic column defaults used when a template does not override them.
const (
	DefaultMaxColumns   = 4
	DefaultMinPerColumn = 3
)

// ColumnCount 计算动态列表的列数：条目数不超过每列最小条目时单列；
// 否则取不超过 maxColumns 且满足 items/k >= minPerColumn 的最大 k。
func ColumnCount(items, minPerColumn, maxColumns int) int {
	if minPerColumn <= 0 {
		minPerColumn = DefaultMinPerColumn
	}
	if maxColumns <= 0 {
		maxColumns = DefaultMaxColumns
	}
	if items <= minPerColumn {
		return 1
	}
	for k := maxColumns; k > 1; k-- {
		if items >= k*minPerColumn {
			return k
		}
	}
	return 1
}

// SplitColumns distributes items column-major into n columns of near-equal height.
func SplitColumns(items []any, n int) [][]any {
	if n <= 1 || len(items) == 0 {
		return [][]any{items}
	}
	per := (len(items) + n - 1) / n
	cols := make([][]any, 0, n)
	for start := 0; start < len(items); start += per {
		end := start + per
		if end > len(items) {
			end = len(items)
		}
		cols = append(cols, items[start:end])
	}
	return cols
}
