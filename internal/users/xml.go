// Package users はユーザーディレクトリ（users.xml）の読み込みと更新を提供する。
package users

import (
	"encoding/xml"
	"fmt"
	"html"
	"io"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/hitoshi/presence/internal/model"
)

// document はusers.xmlのルート要素。
type document struct {
	XMLName xml.Name `xml:"intranet"`
	Server  struct {
		Protocol string `xml:"protocol"`
		Host     string `xml:"host"`
		Port     string `xml:"port"`
	} `xml:"server"`
	Users []struct {
		ID     int    `xml:"id,attr"`
		Name   string `xml:"name"`
		Avatar string `xml:"avatar"`
	} `xml:"users>user"`
}

// namePolicy はユーザー名からHTMLを取り除くポリシー。
// users.xmlは外部から取得するため、表示前にタグを除去する。
var namePolicy = bluemonday.StrictPolicy()

// ParseXML はusers.xmlを解析してユーザー一覧を返す。
// アバターURLはserver要素のprotocol、host、portとavatar要素のパスから組み立てる。
func ParseXML(r io.Reader) ([]model.User, error) {
	var doc document
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse users xml: %w", err)
	}

	server := doc.Server
	if server.Protocol == "" || server.Host == "" {
		return nil, fmt.Errorf("users xml is missing server protocol or host")
	}
	baseURL := fmt.Sprintf("%s://%s", strings.TrimSpace(server.Protocol), strings.TrimSpace(server.Host))
	if port := strings.TrimSpace(server.Port); port != "" {
		baseURL += ":" + port
	}

	users := make([]model.User, 0, len(doc.Users))
	for _, u := range doc.Users {
		users = append(users, model.User{
			ID:     u.ID,
			Name:   strings.TrimSpace(html.UnescapeString(namePolicy.Sanitize(u.Name))),
			Avatar: baseURL + strings.TrimSpace(u.Avatar),
		})
	}
	return users, nil
}
