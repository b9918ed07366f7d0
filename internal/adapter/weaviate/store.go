package weaviate

import (
	"context"
	"fmt"
	"strconv"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"

	"klaro/features/video"
	"klaro/internal/vector"
)

const className = "LearningVideo"

type Store struct {
	client *weaviate.Client
}

func NewStore(client *weaviate.Client) *Store {
	return &Store{client: client}
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	return vector.EnsureSchema(ctx, vector.NewWeaviateClientAdapter(s.client))
}

func (s *Store) Index(ctx context.Context, v video.Video, vector []float32) error {
	_, err := s.client.Data().Creator().
		WithClassName(className).
		WithProperties(map[string]interface{}{
			"videoId":     v.ID,
			"title":       v.Title,
			"url":         v.URL,
			"description": v.Description,
		}).
		WithVector(vector).
		Do(ctx)
	return err
}

func (s *Store) Count(ctx context.Context) (int, error) {
	fields := []graphql.Field{
		{Name: "meta", Fields: []graphql.Field{{Name: "count"}}},
	}

	res, err := s.client.GraphQL().Aggregate().
		WithClassName(className).
		WithFields(fields...).
		Do(ctx)
	if err != nil {
		return 0, err
	}
	if len(res.Errors) > 0 {
		return 0, fmt.Errorf("graphql error: %v", res.Errors)
	}

	if agg, ok := res.Data["Aggregate"].(map[string]interface{}); ok {
		if items, ok := agg[className].([]interface{}); ok && len(items) > 0 {
			if props, ok := items[0].(map[string]interface{}); ok {
				if meta, ok := props["meta"].(map[string]interface{}); ok {
					if count, ok := meta["count"].(float64); ok {
						return int(count), nil
					}
				}
			}
		}
	}
	return 0, nil
}

func (s *Store) Recommend(ctx context.Context, vector []float32, limit int) ([]video.Video, error) {
	near := s.client.GraphQL().NearVectorArgBuilder().WithVector(vector)

	fields := []graphql.Field{
		{Name: "videoId"},
		{Name: "title"},
		{Name: "url"},
		{Name: "description"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "certainty"}}},
	}

	res, err := s.client.GraphQL().Get().
		WithClassName(className).
		WithNearVector(near).
		WithLimit(limit).
		WithFields(fields...).
		Do(ctx)
	if err != nil {
		return nil, err
	}
	if len(res.Errors) > 0 {
		return nil, fmt.Errorf("graphql error: %v", res.Errors)
	}

	var videos []video.Video
	if data, ok := res.Data["Get"].(map[string]interface{}); ok {
		if items, ok := data[className].([]interface{}); ok {
			for _, item := range items {
				props, ok := item.(map[string]interface{})
				if !ok {
					continue
				}

				var v video.Video
				if id, ok := props["videoId"].(string); ok {
					v.ID = id
				}
				if title, ok := props["title"].(string); ok {
					v.Title = title
				}
				if url, ok := props["url"].(string); ok {
					v.URL = url
				}
				if desc, ok := props["description"].(string); ok {
					v.Description = desc
				}

				// Certainty arrives as float64 or string depending on the
				// server version.
				if additional, ok := props["_additional"].(map[string]interface{}); ok {
					switch c := additional["certainty"].(type) {
					case float64:
						v.Score = float32(c)
					case string:
						if f, err := strconv.ParseFloat(c, 64); err == nil {
							v.Score = float32(f)
						}
					}
				}

				videos = append(videos, v)
			}
		}
	}
	return videos, nil
}
