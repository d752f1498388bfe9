package usecase

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/rocketscienceinc/ultimate-tictactoe/internal/entity"
)

type mockPlayerRepo struct {
	mock.Mock
}

func (that *mockPlayerRepo) CreateOrUpdate(ctx context.Context, player *entity.Player) error {
	args := that.Called(ctx, player)
	return args.Error(0)
}

func (that *mockPlayerRepo) GetByID(ctx context.Context, id string) (*entity.Player, error) {
	args := that.Called(ctx, id)
	player, _ := args.Get(0).(*entity.Player)
	return player, args.Error(1)
}

func (that *mockPlayerRepo) DeleteByID(ctx context.Context, id string) error {
	args := that.Called(ctx, id)
	return args.Error(0)
}

type mockRoomRepo struct {
	mock.Mock
}

func (that *mockRoomRepo) CreateOrUpdate(ctx context.Context, room *entity.Room) error {
	args := that.Called(ctx, room)
	return args.Error(0)
}

func (that *mockRoomRepo) GetByCode(ctx context.Context, code string) (*entity.Room, error) {
	args := that.Called(ctx, code)
	room, _ := args.Get(0).(*entity.Room)
	return room, args.Error(1)
}

func (that *mockRoomRepo) DeleteByCode(ctx context.Context, code string) error {
	args := that.Called(ctx, code)
	return args.Error(0)
}

func (that *mockRoomRepo) Exists(ctx context.Context, code string) (bool, error) {
	args := that.Called(ctx, code)
	return args.Bool(0), args.Error(1)
}
