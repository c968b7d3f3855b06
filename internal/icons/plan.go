package icons

import (
	"sort"

	"resumeforge/internal/database"
)

// Plan 是一次保存的图标操作分类结果。
type Plan struct {
	Keep   []database.ResumeIcon
	Upload []Desired
	Delete []database.ResumeIcon
	// Replaced 记录被 Upload 覆盖的旧行，上传失败时回退为保留。
	Replaced map[string]database.ResumeIcon
}

// BuildPlan 按文件名与大小把目标图标分为 keep / upload，把多余的旧行分为 delete。
func BuildPlan(current []database.ResumeIcon, desired []Desired) Plan {
	byName := make(map[string]database.ResumeIcon, len(current))
	for _, row := range current {
		byName[row.Filename] = row
	}

	plan := Plan{Replaced: map[string]database.ResumeIcon{}}
	wanted := make(map[string]struct{}, len(desired))
	for _, d := range desired {
		wanted[d.Filename] = struct{}{}
		row, ok := byName[d.Filename]
		switch {
		case ok && row.FileSize == d.Size:
			plan.Keep = append(plan.Keep, row)
		case ok:
			plan.Replaced[d.Filename] = row
			plan.Upload = append(plan.Upload, d)
		default:
			plan.Upload = append(plan.Upload, d)
		}
	}
	for _, row := range current {
		if _, ok := wanted[row.Filename]; !ok {
			plan.Delete = append(plan.Delete, row)
		}
	}

	sort.Slice(plan.Keep, func(i, j int) bool { return plan.Keep[i].Filename < plan.Keep[j].Filename })
	sort.Slice(plan.Upload, func(i, j int) bool { return plan.Upload[i].Filename < plan.Upload[j].Filename })
	sort.Slice(plan.Delete, func(i, j int) bool { return plan.Delete[i].Filename < plan.Delete[j].Filename })
	return plan
}

// Empty 表示没有任何需要执行的对象操作。
func (p Plan) Empty() bool {
	return len(p.Upload) == 0 && len(p.Delete) == 0
}
