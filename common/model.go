package common

// PageParam 分页参数
type PageParam struct {
	// 页数,从1开始
	Page int `json:"page"`
	// 每页的条数,>0
	PageSize int `json:"page_size"`
}

// Limit 根据maxPage和maxPageSize限制Page和PageSize
func (p *PageParam) Limit(maxPage, maxPageSize int) {
	if p.Page <= 0 {
		p.Page = 1
	}
	if maxPage > 0 && p.Page > maxPage {
		p.Page = maxPage
	}
	if maxPageSize > 0 && (p.PageSize > maxPageSize || p.PageSize <= 0) {
		p.PageSize = maxPageSize
	}
	if p.PageSize <= 0 {
		p.PageSize = 10
	}
}

// StartIndex 返回从0开始的起始索引
func (p *PageParam) StartIndex() int {
	return (p.Page - 1) * p.PageSize
}

// PageResult 分页结果
type PageResult[T any] struct {
	PageParam
	Total     int64 `json:"total"`
	TotalPage int64 `json:"totalPage"`
	Items     []T   `json:"items"`
}

// SetData 设置当前页的数据,nil转为空slice
func (p *PageResult[T]) SetData(items []T) {
	p.Items = make([]T, 0, len(items))
	p.Items = append(p.Items, items...)
}

// CalTotalPage 根据Total计算总页数
func (p *PageResult[T]) CalTotalPage() {
	if p.PageSize > 0 {
		p.TotalPage = (p.Total + int64(p.PageSize) - 1) / int64(p.PageSize)
	}
}
