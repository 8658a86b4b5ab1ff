package repositoryimpl

import (
	"context"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/humangate/humangate/internal/group"
	"github.com/humangate/humangate/pkg/cerr"
	"github.com/humangate/humangate/pkg/storage"
)

const groupsPrefix = "groups"

type YAMLRepository struct {
	store storage.Store
}

func NewYAMLRepository(s storage.Store) *YAMLRepository {
	return &YAMLRepository{store: s}
}

func key(id string) string {
	return fmt.Sprintf("%s/%s.yaml", groupsPrefix, id)
}

func (r *YAMLRepository) Create(ctx context.Context, g *group.Group) error {
	if _, err := r.store.Load(ctx, key(g.ID)); err == nil {
		return cerr.NewError(cerr.AlreadyExists, "group already exists", nil)
	}
	return r.write(ctx, g)
}

func (r *YAMLRepository) Get(ctx context.Context, id string) (*group.Group, error) {
	data, err := r.store.Load(ctx, key(id))
	if err != nil {
		return nil, cerr.WrapStorageReadError("group", err)
	}
	var g group.Group
	if err := yaml.Unmarshal(data, &g); err != nil {
		return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to unmarshal group: %w", err))
	}
	return &g, nil
}

func (r *YAMLRepository) List(ctx context.Context) ([]*group.Group, error) {
	keys, err := r.store.Keys(ctx, groupsPrefix)
	if err != nil {
		return nil, cerr.WrapStorageReadError("groups", err)
	}
	sort.Strings(keys)

	var groups []*group.Group
	for _, k := range keys {
		data, err := r.store.Load(ctx, k)
		if err != nil {
			continue
		}
		var g group.Group
		if err := yaml.Unmarshal(data, &g); err != nil {
			continue
		}
		groups = append(groups, &g)
	}
	return groups, nil
}

func (r *YAMLRepository) Update(ctx context.Context, g *group.Group) error {
	if _, err := r.store.Load(ctx, key(g.ID)); err != nil {
		return cerr.WrapStorageReadError("group", err)
	}
	return r.write(ctx, g)
}

func (r *YAMLRepository) Delete(ctx context.Context, id string) error {
	if err := r.store.Delete(ctx, key(id)); err != nil {
		return cerr.WrapStorageDeleteError("group", err)
	}
	return nil
}

func (r *YAMLRepository) write(ctx context.Context, g *group.Group) error {
	g.SyncMemberCount()
	data, err := yaml.Marshal(g)
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to marshal group: %w", err))
	}
	if err := r.store.Save(ctx, key(g.ID), data); err != nil {
		return cerr.WrapStorageWriteError("group", err)
	}
	return nil
}
