// Package factory builds typed posts with per-type validation, so every
// creation path produces a consistently shaped post.
package factory

import (
	"fmt"
	"time"

	"github.com/connectly-api/connectly/internal/model"
)

// SupportedTypes maps each post type to a short description.
var SupportedTypes = map[string]string{
	model.PostTypeText:    "Standard text post",
	model.PostTypeImage:   "Post with image attachment",
	model.PostTypeVideo:   "Post with video attachment",
	model.PostTypeArticle: "Long-form article post",
	model.PostTypePoll:    "Interactive poll post",
}

var defaultTitles = map[string]string{
	model.PostTypeText:    "New Text Post",
	model.PostTypeImage:   "New Image Post",
	model.PostTypeVideo:   "New Video Post",
	model.PostTypeArticle: "New Article",
	model.PostTypePoll:    "New Poll",
}

// Validate checks type-specific requirements on the input. It returns nil
// when a post of the given type may be created from it.
func Validate(postType, title, content string, metadata map[string]any) error {
	if _, ok := SupportedTypes[postType]; !ok {
		return fmt.Errorf("invalid post type %q", postType)
	}
	if content == "" {
		return fmt.Errorf("content is required for all post types")
	}
	switch postType {
	case model.PostTypeImage:
		return requireMetadata(postType, metadata, "file_size", "file_type")
	case model.PostTypeVideo:
		return requireMetadata(postType, metadata, "duration", "file_size")
	case model.PostTypeArticle:
		if title == "" {
			return fmt.Errorf("article posts require a title")
		}
	}
	return nil
}

// New validates the input and assembles an unsaved post, filling in a
// type-specific default title when none is given.
func New(postType, title, content string, metadata map[string]any, authorID int64) (model.Post, error) {
	if postType == "" {
		postType = model.PostTypeText
	}
	if err := Validate(postType, title, content, metadata); err != nil {
		return model.Post{}, err
	}
	if title == "" {
		title = defaultTitles[postType]
	}
	return model.Post{
		Title:     title,
		Content:   content,
		PostType:  postType,
		Metadata:  metadata,
		AuthorID:  authorID,
		CreatedAt: time.Now(),
	}, nil
}

func requireMetadata(postType string, metadata map[string]any, fields ...string) error {
	for _, field := range fields {
		if _, ok := metadata[field]; !ok {
			return fmt.Errorf("%s posts require %q in metadata", postType, field)
		}
	}
	return nil
}
