package social

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/linkupchat/linkup/model"
	"github.com/linkupchat/linkup/notify"
	"github.com/linkupchat/linkup/testutil"
)

func newService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	n := notify.NewService(db, nil, testutil.Logger())
	return NewService(db, n, testutil.Logger()), db
}

func twoUsers(t *testing.T, db *gorm.DB) (*model.User, *model.User) {
	t.Helper()
	a := testutil.CreateUser(t, db, "alice@example.com", "alice")
	b := testutil.CreateUser(t, db, "bob@example.com", "bob")
	return a, b
}

func TestSendRequest_CreatesPendingAndNotifies(t *testing.T) {
	svc, db := newService(t)
	a, b := twoUsers(t, db)
	ctx := context.Background()

	req, err := svc.SendRequest(ctx, a.ID, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RequestPending, req.Status)
	assert.Equal(t, a.ID, req.SenderID)
	assert.Equal(t, b.ID, req.ReceiverID)

	var notifs []model.Notification
	require.NoError(t, db.Where("recipient_id = ?", b.ID).Find(&notifs).Error)
	require.Len(t, notifs, 1)
	assert.Equal(t, model.NotifyFriendRequest, notifs[0].Type)
	assert.True(t, notifs[0].AutoDelete)
	assert.Contains(t, notifs[0].Text, "alice")
	require.NotNil(t, notifs[0].RelatedRequestID)
	assert.Equal(t, req.ID, *notifs[0].RelatedRequestID)
}

func TestSendRequest_ToSelf(t *testing.T) {
	svc, db := newService(t)
	a, _ := twoUsers(t, db)

	_, err := svc.SendRequest(context.Background(), a.ID, a.ID)
	assert.ErrorIs(t, err, ErrSelfRequest)
}

func TestSendRequest_UnknownUsers(t *testing.T) {
	svc, db := newService(t)
	a, _ := twoUsers(t, db)

	_, err := svc.SendRequest(context.Background(), a.ID, 9999)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.SendRequest(context.Background(), 9999, a.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSendRequest_DuplicatePending(t *testing.T) {
	svc, db := newService(t)
	a, b := twoUsers(t, db)
	ctx := context.Background()

	_, err := svc.SendRequest(ctx, a.ID, b.ID)
	require.NoError(t, err)

	_, err = svc.SendRequest(ctx, a.ID, b.ID)
	assert.ErrorIs(t, err, ErrDuplicatePending)

	// The reverse direction is a distinct pair and stays allowed.
	_, err = svc.SendRequest(ctx, b.ID, a.ID)
	assert.NoError(t, err)
}

func TestSendRequest_AlreadyFriends(t *testing.T) {
	svc, db := newService(t)
	a, b := twoUsers(t, db)
	ctx := context.Background()

	req, err := svc.SendRequest(ctx, a.ID, b.ID)
	require.NoError(t, err)
	require.NoError(t, svc.AcceptRequest(ctx, req.ID, b.ID))

	_, err = svc.SendRequest(ctx, a.ID, b.ID)
	assert.ErrorIs(t, err, ErrAlreadyFriends)
	_, err = svc.SendRequest(ctx, b.ID, a.ID)
	assert.ErrorIs(t, err, ErrAlreadyFriends)
}

func TestAcceptRequest_CreatesSymmetricPair(t *testing.T) {
	svc, db := newService(t)
	a, b := twoUsers(t, db)
	ctx := context.Background()

	req, err := svc.SendRequest(ctx, a.ID, b.ID)
	require.NoError(t, err)
	require.NoError(t, svc.AcceptRequest(ctx, req.ID, b.ID))

	// Both directed edges exist and are active.
	ab, err := svc.AreFriends(ctx, a.ID, b.ID)
	require.NoError(t, err)
	ba, err := svc.AreFriends(ctx, b.ID, a.ID)
	require.NoError(t, err)
	assert.True(t, ab)
	assert.True(t, ba)

	var stored model.FriendRequest
	require.NoError(t, db.First(&stored, req.ID).Error)
	assert.Equal(t, model.RequestAccepted, stored.Status)
}

func TestAcceptRequest_NotificationSwap(t *testing.T) {
	svc, db := newService(t)
	a, b := twoUsers(t, db)
	ctx := context.Background()

	req, err := svc.SendRequest(ctx, a.ID, b.ID)
	require.NoError(t, err)
	require.NoError(t, svc.AcceptRequest(ctx, req.ID, b.ID))

	// The receiver's transient prompt is gone.
	var prompts int64
	require.NoError(t, db.Model(&model.Notification{}).
		Where("recipient_id = ? AND type = ?", b.ID, model.NotifyFriendRequest).
		Count(&prompts).Error)
	assert.Zero(t, prompts)

	// The sender got an accepted notification instead.
	var notifs []model.Notification
	require.NoError(t, db.Where("recipient_id = ?", a.ID).Find(&notifs).Error)
	require.Len(t, notifs, 1)
	assert.Equal(t, model.NotifyFriendRequestAccepted, notifs[0].Type)
	assert.False(t, notifs[0].AutoDelete)
	assert.Contains(t, notifs[0].Text, "bob")
}

func TestAcceptRequest_OnlyReceiverMayAct(t *testing.T) {
	svc, db := newService(t)
	a, b := twoUsers(t, db)
	ctx := context.Background()

	req, err := svc.SendRequest(ctx, a.ID, b.ID)
	require.NoError(t, err)

	// The sender cannot accept their own request.
	err = svc.AcceptRequest(ctx, req.ID, a.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	// Neither can an unrelated party.
	c := testutil.CreateUser(t, db, "carol@example.com", "carol")
	err = svc.AcceptRequest(ctx, req.ID, c.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAcceptRequest_Terminal(t *testing.T) {
	svc, db := newService(t)
	a, b := twoUsers(t, db)
	ctx := context.Background()

	req, err := svc.SendRequest(ctx, a.ID, b.ID)
	require.NoError(t, err)
	require.NoError(t, svc.AcceptRequest(ctx, req.ID, b.ID))

	// A second accept and a late reject both fail: the request already
	// left pending.
	assert.ErrorIs(t, svc.AcceptRequest(ctx, req.ID, b.ID), ErrInvalidTransition)
	assert.ErrorIs(t, svc.RejectRequest(ctx, req.ID, b.ID), ErrInvalidTransition)

	// The ledger did not gain extra edges.
	var edges int64
	require.NoError(t, db.Model(&model.Friendship{}).Count(&edges).Error)
	assert.EqualValues(t, 2, edges)
}

func TestRejectRequest_NoLedgerWrite(t *testing.T) {
	svc, db := newService(t)
	a, b := twoUsers(t, db)
	ctx := context.Background()

	req, err := svc.SendRequest(ctx, a.ID, b.ID)
	require.NoError(t, err)
	require.NoError(t, svc.RejectRequest(ctx, req.ID, b.ID))

	var stored model.FriendRequest
	require.NoError(t, db.First(&stored, req.ID).Error)
	assert.Equal(t, model.RequestRejected, stored.Status)

	friends, err := svc.AreFriends(ctx, a.ID, b.ID)
	require.NoError(t, err)
	assert.False(t, friends)

	// The sender hears about the rejection.
	var notifs []model.Notification
	require.NoError(t, db.Where("recipient_id = ?", a.ID).Find(&notifs).Error)
	require.Len(t, notifs, 1)
	assert.Equal(t, model.NotifyFriendRequestRejected, notifs[0].Type)

	// The receiver's original prompt survives a reject; only accepts
	// swap it out.
	var prompts int64
	require.NoError(t, db.Model(&model.Notification{}).
		Where("recipient_id = ? AND type = ?", b.ID, model.NotifyFriendRequest).
		Count(&prompts).Error)
	assert.EqualValues(t, 1, prompts)
}

func TestSendRequest_AfterRejection(t *testing.T) {
	svc, db := newService(t)
	a, b := twoUsers(t, db)
	ctx := context.Background()

	req, err := svc.SendRequest(ctx, a.ID, b.ID)
	require.NoError(t, err)
	require.NoError(t, svc.RejectRequest(ctx, req.ID, b.ID))

	// The rejected row is history; a fresh request replaces it.
	again, err := svc.SendRequest(ctx, a.ID, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RequestPending, again.Status)
	assert.NotEqual(t, req.ID, again.ID)

	var count int64
	require.NoError(t, db.Model(&model.FriendRequest{}).
		Where("sender_id = ? AND receiver_id = ?", a.ID, b.ID).
		Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestRemoveFriend_ThenResend(t *testing.T) {
	svc, db := newService(t)
	a, b := twoUsers(t, db)
	ctx := context.Background()

	req, err := svc.SendRequest(ctx, a.ID, b.ID)
	require.NoError(t, err)
	require.NoError(t, svc.AcceptRequest(ctx, req.ID, b.ID))

	require.NoError(t, svc.RemoveFriend(ctx, a.ID, b.ID))

	friends, err := svc.AreFriends(ctx, a.ID, b.ID)
	require.NoError(t, err)
	assert.False(t, friends)
	friends, err = svc.AreFriends(ctx, b.ID, a.ID)
	require.NoError(t, err)
	assert.False(t, friends)

	// Removal clears the accepted request too, so the pair can start over.
	_, err = svc.SendRequest(ctx, a.ID, b.ID)
	assert.NoError(t, err)
}

func TestRemoveFriend_Idempotent(t *testing.T) {
	svc, db := newService(t)
	a, b := twoUsers(t, db)

	assert.NoError(t, svc.RemoveFriend(context.Background(), a.ID, b.ID))
}

func TestListPending_NewestFirstAndScoped(t *testing.T) {
	svc, db := newService(t)
	a, b := twoUsers(t, db)
	c := testutil.CreateUser(t, db, "carol@example.com", "carol")
	ctx := context.Background()

	r1, err := svc.SendRequest(ctx, a.ID, c.ID)
	require.NoError(t, err)
	r2, err := svc.SendRequest(ctx, b.ID, c.ID)
	require.NoError(t, err)

	// Force distinct timestamps; back-to-back inserts can land in the
	// same tick.
	require.NoError(t, db.Model(&model.FriendRequest{}).
		Where("id = ?", r2.ID).
		Update("created_at", time.Now().Add(time.Second)).Error)

	pending, err := svc.ListPending(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, r2.ID, pending[0].ID)
	assert.Equal(t, r1.ID, pending[1].ID)

	// Other users see nothing.
	pending, err = svc.ListPending(ctx, a.ID)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestMarkRequestRead(t *testing.T) {
	svc, db := newService(t)
	a, b := twoUsers(t, db)
	ctx := context.Background()

	req, err := svc.SendRequest(ctx, a.ID, b.ID)
	require.NoError(t, err)

	require.NoError(t, svc.MarkRequestRead(ctx, req.ID, b.ID))
	var stored model.FriendRequest
	require.NoError(t, db.First(&stored, req.ID).Error)
	assert.True(t, stored.IsRead)

	// The sender cannot mark the receiver's copy.
	assert.ErrorIs(t, svc.MarkRequestRead(ctx, req.ID, a.ID), ErrNotFound)
}

func TestConcurrentAccept_ExactlyOneWinner(t *testing.T) {
	svc, db := newService(t)
	a, b := twoUsers(t, db)
	ctx := context.Background()

	req, err := svc.SendRequest(ctx, a.ID, b.ID)
	require.NoError(t, err)

	const attempts = 8
	errs := make([]error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = svc.AcceptRequest(ctx, req.ID, b.ID)
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
		} else {
			assert.ErrorIs(t, err, ErrInvalidTransition)
		}
	}
	assert.Equal(t, 1, winners)

	// Exactly one accepted notification, exactly one edge per direction.
	var accepted int64
	require.NoError(t, db.Model(&model.Notification{}).
		Where("recipient_id = ? AND type = ?", a.ID, model.NotifyFriendRequestAccepted).
		Count(&accepted).Error)
	assert.EqualValues(t, 1, accepted)

	var edges int64
	require.NoError(t, db.Model(&model.Friendship{}).Count(&edges).Error)
	assert.EqualValues(t, 2, edges)
}

func TestConcurrentAcceptReject_OneTerminalState(t *testing.T) {
	svc, db := newService(t)
	a, b := twoUsers(t, db)
	ctx := context.Background()

	req, err := svc.SendRequest(ctx, a.ID, b.ID)
	require.NoError(t, err)

	var wg sync.WaitGroup
	var acceptErr, rejectErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		acceptErr = svc.AcceptRequest(ctx, req.ID, b.ID)
	}()
	go func() {
		defer wg.Done()
		rejectErr = svc.RejectRequest(ctx, req.ID, b.ID)
	}()
	wg.Wait()

	// One side won, the other saw the terminal state.
	if acceptErr == nil {
		assert.ErrorIs(t, rejectErr, ErrInvalidTransition)
	} else {
		assert.ErrorIs(t, acceptErr, ErrInvalidTransition)
		assert.NoError(t, rejectErr)
	}

	var stored model.FriendRequest
	require.NoError(t, db.First(&stored, req.ID).Error)
	assert.NotEqual(t, model.RequestPending, stored.Status)
}
