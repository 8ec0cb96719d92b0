package service

import (
	"context"
	"sort"

	"github.com/afikyefet/sudoku-live/internal/domain"
	"github.com/afikyefet/sudoku-live/internal/history"
	pkglog "github.com/afikyefet/sudoku-live/pkg/log"
)

func (s *puzzleService) GetRoomInfo(ctx context.Context, puzzleID string) (*domain.RoomInfo, error) {
	if puzzleID == "" {
		return nil, ErrMissingPuzzleID
	}

	count := s.hub.RoomCount(puzzleID)
	info := &domain.RoomInfo{PuzzleID: puzzleID, Count: count, ClusterCount: count}

	if s.store != nil {
		total, err := s.store.GetClusterCount(ctx, puzzleID)
		if err != nil {
			l := pkglog.Ctx(ctx)
			l.Warn().Err(err).Str(pkglog.FieldPuzzleID, puzzleID).Msg("cluster count unavailable, using local count")
		} else if total > count {
			info.ClusterCount = total
		}
	}

	status, err := s.GetLiveStatus(ctx, puzzleID)
	if err != nil {
		return nil, err
	}
	info.Live = *status
	return info, nil
}

func (s *puzzleService) GetLiveStatus(ctx context.Context, puzzleID string) (*domain.LiveStatus, error) {
	if puzzleID == "" {
		return nil, ErrMissingPuzzleID
	}
	if b, ok := s.arbiter.Current(puzzleID); ok {
		status := liveStatus(b)
		return &status, nil
	}

	if s.store != nil {
		status, err := s.store.GetRoomLiveStatus(ctx, puzzleID)
		if err != nil {
			l := pkglog.Ctx(ctx)
			l.Warn().Err(err).Str(pkglog.FieldPuzzleID, puzzleID).Msg("shared live status unavailable")
		} else if status.IsLive {
			return status, nil
		}
	}
	return &domain.LiveStatus{PuzzleID: puzzleID}, nil
}

func (s *puzzleService) GetLiveRooms(ctx context.Context) (*domain.LiveRoomsResponse, error) {
	known := make(map[string]bool)
	rooms := make([]domain.LiveStatus, 0)
	for _, b := range s.arbiter.Live() {
		known[b.PuzzleID] = true
		rooms = append(rooms, liveStatus(b))
	}

	if s.store != nil {
		ids, err := s.store.GetAllLiveRooms(ctx)
		if err != nil {
			l := pkglog.Ctx(ctx)
			l.Warn().Err(err).Msg("shared live rooms unavailable")
		}
		for _, id := range ids {
			if known[id] {
				continue
			}
			status, err := s.store.GetRoomLiveStatus(ctx, id)
			if err != nil || !status.IsLive {
				continue
			}
			rooms = append(rooms, *status)
		}
	}

	sort.Slice(rooms, func(i, j int) bool { return rooms[i].PuzzleID < rooms[j].PuzzleID })
	return &domain.LiveRoomsResponse{Rooms: rooms, Total: len(rooms)}, nil
}

func (s *puzzleService) GetLiveHistory(ctx context.Context, puzzleID string, limit int) ([]history.LiveSession, error) {
	if puzzleID == "" {
		return nil, ErrMissingPuzzleID
	}
	return s.history.List(ctx, puzzleID, limit)
}

func (s *puzzleService) GetBoardSnapshots(ctx context.Context, puzzleID string) ([]history.SnapshotInfo, error) {
	if puzzleID == "" {
		return nil, ErrMissingPuzzleID
	}
	return s.history.Snapshots(ctx, puzzleID)
}

func (s *puzzleService) GetBoardSnapshot(ctx context.Context, puzzleID, name string) (*history.BoardSnapshot, error) {
	if puzzleID == "" {
		return nil, ErrMissingPuzzleID
	}
	return s.history.Snapshot(ctx, puzzleID, name)
}
