package chat

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medbook/medbook/internal/domain"
	"github.com/medbook/medbook/internal/pubsub"
)

// =============================================================================
// Fakes
// =============================================================================

type fakeDirectory struct {
	appointments map[uuid.UUID]*domain.Appointment
	lookups      int
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{appointments: make(map[uuid.UUID]*domain.Appointment)}
}

func (d *fakeDirectory) add(patientID, doctorID uuid.UUID) *domain.Appointment {
	appt := &domain.Appointment{
		ID:        uuid.New(),
		PatientID: patientID,
		DoctorID:  doctorID,
		Status:    domain.AppointmentStatusBooked,
	}
	d.appointments[appt.ID] = appt
	return appt
}

func (d *fakeDirectory) GetByID(ctx context.Context, id uuid.UUID) (*domain.Appointment, error) {
	d.lookups++
	appt, ok := d.appointments[id]
	if !ok {
		return nil, domain.ErrAppointmentNotFound
	}
	return appt, nil
}

type fakeStore struct {
	mu      sync.Mutex
	created []*domain.ChatMessage
	fail    bool
}

func (s *fakeStore) Create(ctx context.Context, msg *domain.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("insert failed")
	}
	msg.ID = uuid.New()
	msg.CreatedAt = time.Now()
	s.created = append(s.created, msg)
	return nil
}

func (s *fakeStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.created)
}

// failingPubSub rejects every subscription, simulating a broken backend
type failingPubSub struct{}

func (failingPubSub) Publish(ctx context.Context, topic string, msg *pubsub.Message) error {
	return nil
}

func (failingPubSub) Subscribe(ctx context.Context, topic string, handler pubsub.Handler) (pubsub.Subscription, error) {
	return nil, errors.New("backend down")
}

func (failingPubSub) Close() error { return nil }

// =============================================================================
// Helpers
// =============================================================================

func newTestHub(t *testing.T) (*Hub, *fakeDirectory, *fakeStore) {
	t.Helper()
	dir := newFakeDirectory()
	store := &fakeStore{}
	ps := pubsub.NewMemoryPubSub()
	t.Cleanup(func() { _ = ps.Close() })
	return NewHub(dir, store, ps, testLogger()), dir, store
}

func newMember(hub *Hub, userID uuid.UUID) *Client {
	return NewClient(hub, nil, userID, "member", testLogger())
}

func frame(t *testing.T, eventType string, payload interface{}) *Message {
	t.Helper()
	msg, err := NewMessage(eventType, payload)
	require.NoError(t, err)
	return msg
}

// readFrame pops the next queued outbound message for a connection
func readFrame(t *testing.T, c *Client) *Message {
	t.Helper()
	select {
	case data := <-c.send:
		var msg Message
		require.NoError(t, json.Unmarshal(data, &msg))
		return &msg
	default:
		t.Fatal("no message queued for client")
		return nil
	}
}

func assertNoFrame(t *testing.T, c *Client) {
	t.Helper()
	assert.Empty(t, c.send, "expected no queued messages")
}

func errorMessage(t *testing.T, msg *Message) string {
	t.Helper()
	var p ErrorPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &p))
	return p.Message
}

// =============================================================================
// Join Pipeline Tests
// =============================================================================

func TestJoinRoom_ParticipantAdmitted(t *testing.T) {
	hub, dir, _ := newTestHub(t)

	patientID := uuid.New()
	appt := dir.add(patientID, uuid.New())
	client := newMember(hub, patientID)

	hub.HandleMessage(client, frame(t, EventTypeJoinRoom, JoinRoomPayload{AppointmentID: appt.ID.String()}))

	assert.True(t, client.IsInRoom(appt.ID))
	assert.Equal(t, 1, hub.RoomSize(appt.ID))
	assertNoFrame(t, client)
}

func TestJoinRoom_DoctorAdmitted(t *testing.T) {
	hub, dir, _ := newTestHub(t)

	doctorID := uuid.New()
	appt := dir.add(uuid.New(), doctorID)
	client := newMember(hub, doctorID)

	hub.HandleMessage(client, frame(t, EventTypeJoinRoom, JoinRoomPayload{AppointmentID: appt.ID.String()}))

	assert.True(t, client.IsInRoom(appt.ID))
}

func TestJoinRoom_NonParticipantRejected(t *testing.T) {
	hub, dir, _ := newTestHub(t)

	appt := dir.add(uuid.New(), uuid.New())
	intruder := newMember(hub, uuid.New())

	hub.HandleMessage(intruder, frame(t, EventTypeJoinRoom, JoinRoomPayload{AppointmentID: appt.ID.String()}))

	assert.False(t, intruder.IsInRoom(appt.ID))
	assert.Equal(t, 0, hub.RoomSize(appt.ID))

	reply := readFrame(t, intruder)
	assert.Equal(t, EventTypeJoinError, reply.Type)
	assert.Equal(t, ErrMsgUnauthorizedOrNotFound, errorMessage(t, reply))
}

func TestJoinRoom_MissingAppointmentSameErrorAsUnauthorized(t *testing.T) {
	hub, _, _ := newTestHub(t)

	client := newMember(hub, uuid.New())
	hub.HandleMessage(client, frame(t, EventTypeJoinRoom, JoinRoomPayload{AppointmentID: uuid.New().String()}))

	reply := readFrame(t, client)
	assert.Equal(t, EventTypeJoinError, reply.Type)
	assert.Equal(t, ErrMsgUnauthorizedOrNotFound, errorMessage(t, reply))
}

func TestJoinRoom_MalformedAppointmentID(t *testing.T) {
	hub, _, _ := newTestHub(t)

	client := newMember(hub, uuid.New())
	hub.HandleMessage(client, frame(t, EventTypeJoinRoom, JoinRoomPayload{AppointmentID: "not-a-uuid"}))

	reply := readFrame(t, client)
	assert.Equal(t, EventTypeJoinError, reply.Type)
	assert.Equal(t, ErrMsgUnauthorizedOrNotFound, errorMessage(t, reply))
}

func TestJoinRoom_RejoinIsNoOp(t *testing.T) {
	hub, dir, _ := newTestHub(t)

	patientID := uuid.New()
	appt := dir.add(patientID, uuid.New())
	client := newMember(hub, patientID)

	join := JoinRoomPayload{AppointmentID: appt.ID.String()}
	hub.HandleMessage(client, frame(t, EventTypeJoinRoom, join))
	lookupsAfterFirst := dir.lookups

	hub.HandleMessage(client, frame(t, EventTypeJoinRoom, join))

	assert.Equal(t, 1, hub.RoomSize(appt.ID))
	assert.Equal(t, lookupsAfterFirst, dir.lookups, "rejoin should not re-run authorization")
	assertNoFrame(t, client)
}

// =============================================================================
// Send Pipeline Tests
// =============================================================================

func TestSendMessage_PersistsAndBroadcastsToAllMembers(t *testing.T) {
	hub, dir, store := newTestHub(t)

	patientID := uuid.New()
	doctorID := uuid.New()
	appt := dir.add(patientID, doctorID)

	patient := newMember(hub, patientID)
	doctor := newMember(hub, doctorID)

	join := JoinRoomPayload{AppointmentID: appt.ID.String()}
	hub.HandleMessage(patient, frame(t, EventTypeJoinRoom, join))
	hub.HandleMessage(doctor, frame(t, EventTypeJoinRoom, join))

	hub.HandleMessage(patient, frame(t, EventTypeSendMessage, SendMessagePayload{
		AppointmentID: appt.ID.String(),
		Message:       "  hello doctor  ",
	}))

	// Persisted exactly once, trimmed
	require.Len(t, store.created, 1)
	saved := store.created[0]
	assert.Equal(t, "hello doctor", saved.Body)
	assert.Equal(t, patientID, saved.SenderID)
	assert.Equal(t, appt.ID, saved.AppointmentID)

	// Both members, sender included, get the same broadcast
	for _, member := range []*Client{patient, doctor} {
		got := readFrame(t, member)
		assert.Equal(t, EventTypeReceiveMessage, got.Type)

		var p ReceiveMessagePayload
		require.NoError(t, json.Unmarshal(got.Payload, &p))
		assert.Equal(t, saved.ID, p.ID)
		assert.Equal(t, appt.ID, p.AppointmentID)
		assert.Equal(t, patientID, p.Sender)
		assert.Equal(t, "hello doctor", p.Message)
		assertNoFrame(t, member)
	}
}

func TestSendMessage_OrderPreservedForAllMembers(t *testing.T) {
	hub, dir, store := newTestHub(t)

	patientID := uuid.New()
	doctorID := uuid.New()
	appt := dir.add(patientID, doctorID)

	patient := newMember(hub, patientID)
	doctor := newMember(hub, doctorID)

	join := JoinRoomPayload{AppointmentID: appt.ID.String()}
	hub.HandleMessage(patient, frame(t, EventTypeJoinRoom, join))
	hub.HandleMessage(doctor, frame(t, EventTypeJoinRoom, join))

	for _, body := range []string{"first", "second", "third"} {
		hub.HandleMessage(patient, frame(t, EventTypeSendMessage, SendMessagePayload{
			AppointmentID: appt.ID.String(),
			Message:       body,
		}))
	}

	require.Len(t, store.created, 3)

	for _, member := range []*Client{patient, doctor} {
		for _, want := range []string{"first", "second", "third"} {
			got := readFrame(t, member)
			var p ReceiveMessagePayload
			require.NoError(t, json.Unmarshal(got.Payload, &p))
			assert.Equal(t, want, p.Message)
		}
	}
}

func TestSendMessage_NotInRoomRejected(t *testing.T) {
	hub, dir, store := newTestHub(t)

	patientID := uuid.New()
	appt := dir.add(patientID, uuid.New())

	// Authorized participant, but never joined
	client := newMember(hub, patientID)

	hub.HandleMessage(client, frame(t, EventTypeSendMessage, SendMessagePayload{
		AppointmentID: appt.ID.String(),
		Message:       "hello",
	}))

	reply := readFrame(t, client)
	assert.Equal(t, EventTypeSendError, reply.Type)
	assert.Equal(t, ErrMsgInvalidRequest, errorMessage(t, reply))
	assert.Empty(t, store.created)
}

func TestSendMessage_RejectedJoinerCannotSend(t *testing.T) {
	hub, dir, store := newTestHub(t)

	appt := dir.add(uuid.New(), uuid.New())
	intruder := newMember(hub, uuid.New())

	hub.HandleMessage(intruder, frame(t, EventTypeJoinRoom, JoinRoomPayload{AppointmentID: appt.ID.String()}))
	_ = readFrame(t, intruder) // joinError

	hub.HandleMessage(intruder, frame(t, EventTypeSendMessage, SendMessagePayload{
		AppointmentID: appt.ID.String(),
		Message:       "let me in",
	}))

	reply := readFrame(t, intruder)
	assert.Equal(t, EventTypeSendError, reply.Type)
	assert.Equal(t, ErrMsgInvalidRequest, errorMessage(t, reply))
	assert.Empty(t, store.created)
}

func TestSendMessage_EmptyMessageRejected(t *testing.T) {
	hub, dir, store := newTestHub(t)

	patientID := uuid.New()
	appt := dir.add(patientID, uuid.New())
	client := newMember(hub, patientID)
	hub.HandleMessage(client, frame(t, EventTypeJoinRoom, JoinRoomPayload{AppointmentID: appt.ID.String()}))

	hub.HandleMessage(client, frame(t, EventTypeSendMessage, SendMessagePayload{
		AppointmentID: appt.ID.String(),
		Message:       "",
	}))

	reply := readFrame(t, client)
	assert.Equal(t, EventTypeSendError, reply.Type)
	assert.Equal(t, ErrMsgInvalidRequest, errorMessage(t, reply))
	assert.Empty(t, store.created)
}

func TestSendMessage_MalformedPayloadRejected(t *testing.T) {
	hub, _, store := newTestHub(t)

	client := newMember(hub, uuid.New())
	hub.HandleMessage(client, &Message{
		Type:    EventTypeSendMessage,
		Payload: json.RawMessage(`{"appointmentId": 42}`),
	})

	reply := readFrame(t, client)
	assert.Equal(t, EventTypeSendError, reply.Type)
	assert.Equal(t, ErrMsgInvalidRequest, errorMessage(t, reply))
	assert.Empty(t, store.created)
}

func TestSendMessage_StoreFailureNothingBroadcast(t *testing.T) {
	hub, dir, store := newTestHub(t)

	patientID := uuid.New()
	doctorID := uuid.New()
	appt := dir.add(patientID, doctorID)

	patient := newMember(hub, patientID)
	doctor := newMember(hub, doctorID)

	join := JoinRoomPayload{AppointmentID: appt.ID.String()}
	hub.HandleMessage(patient, frame(t, EventTypeJoinRoom, join))
	hub.HandleMessage(doctor, frame(t, EventTypeJoinRoom, join))

	store.fail = true
	hub.HandleMessage(patient, frame(t, EventTypeSendMessage, SendMessagePayload{
		AppointmentID: appt.ID.String(),
		Message:       "hello",
	}))

	// Sender gets the failure, the other member sees nothing
	reply := readFrame(t, patient)
	assert.Equal(t, EventTypeSendError, reply.Type)
	assert.Equal(t, ErrMsgFailedToSend, errorMessage(t, reply))
	assertNoFrame(t, doctor)
	assert.Empty(t, store.created)
}

// =============================================================================
// Disconnect Tests
// =============================================================================

func TestUnregister_ReleasesAllRooms(t *testing.T) {
	hub, dir, _ := newTestHub(t)

	patientID := uuid.New()
	appt1 := dir.add(patientID, uuid.New())
	appt2 := dir.add(patientID, uuid.New())
	client := newMember(hub, patientID)

	hub.HandleMessage(client, frame(t, EventTypeJoinRoom, JoinRoomPayload{AppointmentID: appt1.ID.String()}))
	hub.HandleMessage(client, frame(t, EventTypeJoinRoom, JoinRoomPayload{AppointmentID: appt2.ID.String()}))

	assert.Equal(t, 1, hub.RoomSize(appt1.ID))
	assert.Equal(t, 1, hub.RoomSize(appt2.ID))

	hub.handleUnregister(client)

	assert.Equal(t, 0, hub.RoomSize(appt1.ID))
	assert.Equal(t, 0, hub.RoomSize(appt2.ID))
}

func TestUnregister_RemainingMembersStillReceive(t *testing.T) {
	hub, dir, store := newTestHub(t)

	patientID := uuid.New()
	doctorID := uuid.New()
	appt := dir.add(patientID, doctorID)

	patient := newMember(hub, patientID)
	doctor := newMember(hub, doctorID)

	join := JoinRoomPayload{AppointmentID: appt.ID.String()}
	hub.HandleMessage(patient, frame(t, EventTypeJoinRoom, join))
	hub.HandleMessage(doctor, frame(t, EventTypeJoinRoom, join))

	hub.handleUnregister(patient)

	hub.HandleMessage(doctor, frame(t, EventTypeSendMessage, SendMessagePayload{
		AppointmentID: appt.ID.String(),
		Message:       "still here?",
	}))

	require.Len(t, store.created, 1)
	got := readFrame(t, doctor)
	assert.Equal(t, EventTypeReceiveMessage, got.Type)
}

func TestUnregister_LastMemberTearsDownRoomSubscription(t *testing.T) {
	dir := newFakeDirectory()
	store := &fakeStore{}
	ps := pubsub.NewMemoryPubSub()
	defer ps.Close()
	hub := NewHub(dir, store, ps, testLogger())

	patientID := uuid.New()
	appt := dir.add(patientID, uuid.New())
	client := newMember(hub, patientID)

	hub.HandleMessage(client, frame(t, EventTypeJoinRoom, JoinRoomPayload{AppointmentID: appt.ID.String()}))
	assert.Equal(t, 1, ps.SubscriberCount(pubsub.Topics.Appointment(appt.ID.String())))

	hub.handleUnregister(client)
	assert.Equal(t, 0, ps.SubscriberCount(pubsub.Topics.Appointment(appt.ID.String())))
}

func TestJoinRoom_SubscribeFailureRejectsJoin(t *testing.T) {
	dir := newFakeDirectory()
	store := &fakeStore{}
	hub := NewHub(dir, store, failingPubSub{}, testLogger())

	patientID := uuid.New()
	appt := dir.add(patientID, uuid.New())
	client := newMember(hub, patientID)

	hub.HandleMessage(client, frame(t, EventTypeJoinRoom, JoinRoomPayload{AppointmentID: appt.ID.String()}))

	// Without a room subscription no broadcast could ever reach the member,
	// so the join must not be admitted
	reply := readFrame(t, client)
	assert.Equal(t, EventTypeJoinError, reply.Type)
	assert.Equal(t, ErrMsgFailedToJoin, errorMessage(t, reply))
	assert.False(t, client.IsInRoom(appt.ID))
	assert.Equal(t, 0, hub.RoomSize(appt.ID))
}

// =============================================================================
// Concurrency Tests
// =============================================================================

// drainBodies empties a client's outbound queue and returns the message text
// of every receiveMessage frame, in queue order.
func drainBodies(t *testing.T, c *Client) []string {
	t.Helper()
	var bodies []string
	for {
		select {
		case data := <-c.send:
			var msg Message
			require.NoError(t, json.Unmarshal(data, &msg))
			if msg.Type != EventTypeReceiveMessage {
				continue
			}
			var p ReceiveMessagePayload
			require.NoError(t, json.Unmarshal(msg.Payload, &p))
			bodies = append(bodies, p.Message)
		default:
			return bodies
		}
	}
}

func TestSendMessage_ConcurrentSendersSameOrderForAllMembers(t *testing.T) {
	hub, dir, store := newTestHub(t)

	patientID := uuid.New()
	doctorID := uuid.New()
	appt := dir.add(patientID, doctorID)

	patient := newMember(hub, patientID)
	doctor := newMember(hub, doctorID)

	join := JoinRoomPayload{AppointmentID: appt.ID.String()}
	hub.HandleMessage(patient, frame(t, EventTypeJoinRoom, join))
	hub.HandleMessage(doctor, frame(t, EventTypeJoinRoom, join))

	const perSender = 50
	patientFrames := make([]*Message, perSender)
	doctorFrames := make([]*Message, perSender)
	for i := 0; i < perSender; i++ {
		patientFrames[i] = frame(t, EventTypeSendMessage, SendMessagePayload{
			AppointmentID: appt.ID.String(),
			Message:       "p-" + uuid.NewString(),
		})
		doctorFrames[i] = frame(t, EventTypeSendMessage, SendMessagePayload{
			AppointmentID: appt.ID.String(),
			Message:       "d-" + uuid.NewString(),
		})
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for _, f := range patientFrames {
			hub.HandleMessage(patient, f)
		}
	}()
	go func() {
		defer wg.Done()
		for _, f := range doctorFrames {
			hub.HandleMessage(doctor, f)
		}
	}()
	wg.Wait()

	assert.Equal(t, 2*perSender, store.count())

	// Both members must observe the same messages in the same relative order
	patientSaw := drainBodies(t, patient)
	doctorSaw := drainBodies(t, doctor)
	require.Len(t, patientSaw, 2*perSender)
	assert.Equal(t, patientSaw, doctorSaw)
}

func TestSendMessage_ConcurrentDisconnectDoesNotPanic(t *testing.T) {
	for i := 0; i < 200; i++ {
		dir := newFakeDirectory()
		store := &fakeStore{}
		ps := pubsub.NewMemoryPubSub()
		hub := NewHub(dir, store, ps, testLogger())

		patientID := uuid.New()
		doctorID := uuid.New()
		appt := dir.add(patientID, doctorID)

		patient := newMember(hub, patientID)
		doctor := newMember(hub, doctorID)

		join := JoinRoomPayload{AppointmentID: appt.ID.String()}
		hub.HandleMessage(patient, frame(t, EventTypeJoinRoom, join))
		hub.HandleMessage(doctor, frame(t, EventTypeJoinRoom, join))

		send := frame(t, EventTypeSendMessage, SendMessagePayload{
			AppointmentID: appt.ID.String(),
			Message:       "hello",
		})

		// A broadcast racing the other member's disconnect must never write
		// to a closed channel
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			hub.HandleMessage(patient, send)
		}()
		go func() {
			defer wg.Done()
			hub.handleUnregister(doctor)
		}()
		wg.Wait()

		_ = ps.Close()
	}
}

// =============================================================================
// Unknown Event Tests
// =============================================================================

func TestHandleMessage_UnknownEventIgnored(t *testing.T) {
	hub, _, _ := newTestHub(t)

	client := newMember(hub, uuid.New())
	hub.HandleMessage(client, &Message{Type: "typing", Payload: json.RawMessage(`{}`)})

	assertNoFrame(t, client)
}
