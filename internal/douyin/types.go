// Package douyin defines the platform data model: persisted records, the
// wire shapes returned by the private web API, and identifier resolution for
// user-supplied video and creator references.
package douyin

import (
	"encoding/json"
	"time"
)

// VideoRecord is the persisted form of a single video item, keyed by the
// platform video id. Every re-crawl of the same id replaces all fields
// except VideoPath, which only the media-download step writes.
type VideoRecord struct {
	ID           int64     `json:"id"`
	AwemeID      string    `json:"aweme_id"`
	Title        string    `json:"title"`
	Desc         string    `json:"desc"`
	AuthorName   string    `json:"author_name"`
	AuthorID     string    `json:"author_id"`
	VideoURL     string    `json:"video_url"`
	CoverURL     string    `json:"cover_url"`
	LikeCount    int64     `json:"like_count"`
	CommentCount int64     `json:"comment_count"`
	ShareCount   int64     `json:"share_count"`
	CreateTime   int64     `json:"create_time"`
	Keyword      string    `json:"keyword"`
	VideoPath    string    `json:"video_path"`
	CrawlTime    time.Time `json:"crawl_time"`
}

// CreatorRecord is the persisted form of a creator profile, keyed by the
// platform's opaque sec_user_id.
type CreatorRecord struct {
	ID             int64     `json:"id"`
	SecUserID      string    `json:"sec_user_id"`
	Nickname       string    `json:"nickname"`
	Signature      string    `json:"signature"`
	AvatarURL      string    `json:"avatar_url"`
	FollowerCount  int64     `json:"follower_count"`
	FollowingCount int64     `json:"following_count"`
	AwemeCount     int64     `json:"aweme_count"`
	TotalFavorited int64     `json:"total_favorited"`
	CrawlTime      time.Time `json:"crawl_time"`
}

// Aweme is a single video item as returned by the platform.
type Aweme struct {
	AwemeID    string      `json:"aweme_id"`
	Desc       string      `json:"desc"`
	CreateTime int64       `json:"create_time"`
	Author     Author      `json:"author"`
	Video      VideoMeta   `json:"video"`
	Statistics Statistics  `json:"statistics"`
	Images     []ImageItem `json:"images"`
}

// Author identifies the creator attached to a video item.
type Author struct {
	Nickname string `json:"nickname"`
	SecUID   string `json:"sec_uid"`
}

// VideoMeta carries the playable asset and cover image addresses.
type VideoMeta struct {
	PlayAddr URLList `json:"play_addr"`
	Cover    URLList `json:"cover"`
}

// Statistics holds the engagement counters. They are monotonic on the
// platform but stored as plain overwrites locally.
type Statistics struct {
	DiggCount    int64 `json:"digg_count"`
	CommentCount int64 `json:"comment_count"`
	ShareCount   int64 `json:"share_count"`
}

// ImageItem is one image of an image-post item.
type ImageItem struct {
	URLList []string `json:"url_list"`
}

// URLList wraps the platform's url_list envelope.
type URLList struct {
	URLList []string `json:"url_list"`
}

// First returns the first URL of the list or "".
func (u URLList) First() string {
	if len(u.URLList) == 0 {
		return ""
	}
	return u.URLList[0]
}

// PlayURL returns the primary playable asset address.
func (a Aweme) PlayURL() string {
	return a.Video.PlayAddr.First()
}

// CoverURL returns the primary cover image address.
func (a Aweme) CoverURL() string {
	return a.Video.Cover.First()
}

// SearchItem is one entry of a search result page. Plain video results carry
// AwemeInfo; "video group" results nest their items under AwemeMixInfo.
type SearchItem struct {
	AwemeInfo    *Aweme        `json:"aweme_info"`
	AwemeMixInfo *AwemeMixInfo `json:"aweme_mix_info"`
}

// AwemeMixInfo is the mixed "video group" envelope of a search item.
type AwemeMixInfo struct {
	MixItems []Aweme `json:"mix_items"`
}

// Video extracts the video payload of a search item: the direct item, or the
// first element of a video group. Returns false when neither is present.
func (s SearchItem) Video() (Aweme, bool) {
	if s.AwemeInfo != nil {
		return *s.AwemeInfo, true
	}
	if s.AwemeMixInfo != nil && len(s.AwemeMixInfo.MixItems) > 0 {
		return s.AwemeMixInfo.MixItems[0], true
	}
	return Aweme{}, false
}

// SearchResponse is a page of keyword search results. Data distinguishes a
// missing envelope (nil, suspected blocking) from an empty page (non-nil,
// zero entries, normal end of results).
type SearchResponse struct {
	Data  *[]SearchItem `json:"data"`
	Extra SearchExtra   `json:"extra"`
}

// SearchExtra carries the search-session token the platform issues on the
// first page of a keyword; subsequent pages must echo it.
type SearchExtra struct {
	Logid string `json:"logid"`
}

// DetailResponse wraps the detail endpoint payload.
type DetailResponse struct {
	AwemeDetail *Aweme `json:"aweme_detail"`
}

// ProfileResponse wraps the creator profile endpoint payload.
type ProfileResponse struct {
	User UserProfile `json:"user"`
}

// UserProfile is the creator profile as returned by the platform.
type UserProfile struct {
	Nickname       string  `json:"nickname"`
	Signature      string  `json:"signature"`
	AvatarLarger   URLList `json:"avatar_larger"`
	FollowerCount  int64   `json:"follower_count"`
	FollowingCount int64   `json:"following_count"`
	AwemeCount     int64   `json:"aweme_count"`
	TotalFavorited int64   `json:"total_favorited"`
}

// PostsResponse is one page of a creator's post listing. MaxCursor is an
// opaque server-issued pagination token echoed back verbatim.
type PostsResponse struct {
	AwemeList []Aweme     `json:"aweme_list"`
	HasMore   int         `json:"has_more"`
	MaxCursor json.Number `json:"max_cursor"`
}

// titleLimit caps the derived title length, in runes.
const titleLimit = 200

// RecordFromAweme flattens a wire item into its persisted form. Keyword is
// empty unless the item came from a search page.
func RecordFromAweme(a Aweme, keyword string) VideoRecord {
	title := a.Desc
	if runes := []rune(title); len(runes) > titleLimit {
		title = string(runes[:titleLimit])
	}
	return VideoRecord{
		AwemeID:      a.AwemeID,
		Title:        title,
		Desc:         a.Desc,
		AuthorName:   a.Author.Nickname,
		AuthorID:     a.Author.SecUID,
		VideoURL:     a.PlayURL(),
		CoverURL:     a.CoverURL(),
		LikeCount:    a.Statistics.DiggCount,
		CommentCount: a.Statistics.CommentCount,
		ShareCount:   a.Statistics.ShareCount,
		CreateTime:   a.CreateTime,
		Keyword:      keyword,
	}
}

// RecordFromProfile flattens a profile payload into its persisted form.
func RecordFromProfile(secUserID string, p UserProfile) CreatorRecord {
	return CreatorRecord{
		SecUserID:      secUserID,
		Nickname:       p.Nickname,
		Signature:      p.Signature,
		AvatarURL:      p.AvatarLarger.First(),
		FollowerCount:  p.FollowerCount,
		FollowingCount: p.FollowingCount,
		AwemeCount:     p.AwemeCount,
		TotalFavorited: p.TotalFavorited,
	}
}

// SearchChannel selects the search vertical.
type SearchChannel string

// Search verticals accepted by the general search endpoint.
const (
	SearchChannelGeneral SearchChannel = "aweme_general"
	SearchChannelVideo   SearchChannel = "aweme_video_web"
	SearchChannelUser    SearchChannel = "aweme_user_web"
	SearchChannelLive    SearchChannel = "aweme_live"
)

// SearchSort orders search results.
type SearchSort int

// Sort orders accepted by the search filter.
const (
	SortGeneral  SearchSort = 0
	SortMostLike SearchSort = 1
	SortLatest   SearchSort = 2
)

// PublishTime restricts search results by publication age, in days.
type PublishTime int

// Publication age filters accepted by the search filter.
const (
	PublishUnlimited PublishTime = 0
	PublishOneDay    PublishTime = 1
	PublishOneWeek   PublishTime = 7
	PublishSixMonths PublishTime = 180
)
