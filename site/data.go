package site

import (
	"os"

	jsoniter "github.com/json-iterator/go"
	c "github.com/wookietoast/site/common"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Experience 工作经历
type Experience struct {
	Company    string   `json:"company"`
	Role       string   `json:"role"`
	Period     string   `json:"period"`
	Highlights []string `json:"highlights"`
}

// Education 教育经历
type Education struct {
	School string `json:"school"`
	Degree string `json:"degree"`
	Period string `json:"period"`
}

// Resume 简历
type Resume struct {
	Name       string        `json:"name"`
	Headline   string        `json:"headline"`
	Summary    string        `json:"summary"`
	Skills     []string      `json:"skills"`
	Experience []*Experience `json:"experience"`
	Education  []*Education  `json:"education"`
}

// Project 项目
type Project struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	URL         string   `json:"url"`
	Tags        []string `json:"tags"`
}

// Data 页面使用的静态数据
type Data struct {
	Resume   *Resume    `json:"resume"`
	Projects []*Project `json:"projects"`
}

// ParseData 解析数据,缺失的部分用空值代替
func ParseData(content []byte) (*Data, error) {
	data := &Data{}
	if err := json.Unmarshal(content, data); err != nil {
		return nil, c.NewError(c.KindValidation, err, "invalid site data")
	}
	if data.Resume == nil {
		data.Resume = &Resume{}
	}
	if data.Projects == nil {
		data.Projects = []*Project{}
	}
	return data, nil
}

// LoadData 从path加载数据,path为空时使用内置的数据
func LoadData(path string) (*Data, error) {
	var (
		content []byte
		err     error
	)
	if path == "" {
		content, err = assets.ReadFile("assets/data.json")
	} else {
		c.Infof("load site data from %s", path)
		content, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, c.NewErrorf(c.KindMissingConfiguration, err, "can't read site data %s", path)
	}
	return ParseData(content)
}
