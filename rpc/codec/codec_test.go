package codec

import (
	"bytes"
	"encoding/binary"
	"github.com/ValentinKolb/solo/rpc/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
)

// allTypes lists every valid message type
var allTypes = []common.MessageType{
	common.MsgTAcknowledge,
	common.MsgTNewInstance,
	common.MsgTInstanceMessage,
	common.MsgTPrimaryPidRequest,
	common.MsgTPrimaryUserRequest,
}

// mustEncode encodes a message or fails the test
func mustEncode(t *testing.T, msgType common.MessageType, instanceID uint16, content []byte) []byte {
	t.Helper()
	frame, err := Encode(msgType, instanceID, content)
	require.NoError(t, err)
	return frame
}

// TestChecksumCheckValue verifies the CRC-16/CCITT-FALSE check value
func TestChecksumCheckValue(t *testing.T) {
	assert.Equal(t, uint16(0x29B1), Checksum([]byte("123456789")))
	assert.Equal(t, uint16(0xFFFF), Checksum(nil))
}

// TestEncodeLayout checks the byte layout of an encoded frame
func TestEncodeLayout(t *testing.T) {
	content := []byte("hello")
	frame := mustEncode(t, common.MsgTInstanceMessage, 0x0102, content)

	require.Len(t, frame, Overhead+len(content))
	assert.Equal(t, []byte{0x00, 0x01, 0x00, 0x02}, frame[:4])
	assert.Equal(t, uint32(1), binary.BigEndian.Uint32(frame[4:8]))
	assert.Equal(t, byte(common.MsgTInstanceMessage), frame[8])
	assert.Equal(t, uint16(0x0102), binary.BigEndian.Uint16(frame[9:11]))
	assert.Equal(t, uint64(len(content)), binary.BigEndian.Uint64(frame[11:19]))
	assert.Equal(t, content, frame[19:24])
	assert.Equal(t, Checksum(content), binary.BigEndian.Uint16(frame[24:26]))
}

// TestRoundTrip tests that every message type survives encode and decode for the boundary sizes
func TestRoundTrip(t *testing.T) {
	sizes := map[string]int{
		"empty":   0,
		"one":     1,
		"max-1MB": common.MaxContentSize,
	}

	for name, size := range sizes {
		t.Run(name, func(t *testing.T) {
			content := bytes.Repeat([]byte{0xAB}, size)

			for _, msgType := range allTypes {
				frame := mustEncode(t, msgType, 42, content)

				cursor := NewCursor()
				outcome, msg, err := cursor.Decode(frame)
				require.NoError(t, err)
				require.Equal(t, OutcomeComplete, outcome, "type %s", msgType)

				assert.Equal(t, msgType, msg.MsgType)
				assert.Equal(t, uint16(42), msg.InstanceID)
				assert.Equal(t, size, len(msg.Content))
				assert.True(t, bytes.Equal(content, msg.Content))
				assert.Equal(t, 0, cursor.Buffered())
			}
		})
	}
}

// TestEncodeOversize tests that content above 1 MiB is rejected without output
func TestEncodeOversize(t *testing.T) {
	frame, err := Encode(common.MsgTInstanceMessage, 1, make([]byte, common.MaxContentSize+1))
	require.ErrorIs(t, err, ErrContentTooLarge)
	assert.Nil(t, frame)

	var buf bytes.Buffer
	err = WriteMessage(&buf, common.Message{MsgType: common.MsgTInstanceMessage, Content: make([]byte, common.MaxContentSize+1)})
	require.ErrorIs(t, err, ErrContentTooLarge)
	assert.Equal(t, 0, buf.Len())
}

// TestEncodeUnknownType tests that unknown message types are never written
func TestEncodeUnknownType(t *testing.T) {
	_, err := Encode(common.MessageType(17), 1, nil)
	require.ErrorIs(t, err, ErrUnexpectedMessageType)
}

// TestWriteMessageMatchesEncode tests that the buffered writer produces the same bytes as Encode
func TestWriteMessageMatchesEncode(t *testing.T) {
	msg := common.NewInstanceRequest(7, []byte("payload"))

	var buf bytes.Buffer
	require.NoError(t, WriteMessage(&buf, *msg))

	frame, err := EncodeMessage(*msg)
	require.NoError(t, err)
	assert.Equal(t, frame, buf.Bytes())
}

// TestSplitDelivery feeds a frame one byte at a time
func TestSplitDelivery(t *testing.T) {
	frame := mustEncode(t, common.MsgTNewInstance, 3, []byte("split me"))
	cursor := NewCursor()

	for i, b := range frame {
		outcome, msg, err := cursor.Decode([]byte{b})
		require.NoError(t, err)

		if i < len(frame)-1 {
			require.Equal(t, OutcomeIncomplete, outcome, "byte %d", i)
			require.Equal(t, i+1, cursor.Buffered(), "bytes must be retained")
			continue
		}

		require.Equal(t, OutcomeComplete, outcome)
		assert.Equal(t, []byte("split me"), msg.Content)
	}
}

// TestArbitraryChunks feeds two frames split at every possible boundary
func TestArbitraryChunks(t *testing.T) {
	first := mustEncode(t, common.MsgTNewInstance, 1, []byte("first"))
	second := mustEncode(t, common.MsgTInstanceMessage, 2, []byte("second"))
	stream := append(append([]byte{}, first...), second...)

	for split := 0; split <= len(stream); split++ {
		cursor := NewCursor()
		var received []common.Message

		for _, chunk := range [][]byte{stream[:split], stream[split:]} {
			outcome, msg, err := cursor.Decode(chunk)
			for outcome == OutcomeComplete {
				require.NoError(t, err)
				received = append(received, msg)
				outcome, msg, err = cursor.Decode(nil)
			}
			require.Equal(t, OutcomeIncomplete, outcome, "split %d", split)
		}

		require.Len(t, received, 2, "split %d", split)
		assert.Equal(t, []byte("first"), received[0].Content)
		assert.Equal(t, []byte("second"), received[1].Content)
	}
}

// TestCorruptionResync prepends garbage to a valid frame
func TestCorruptionResync(t *testing.T) {
	for _, garbage := range [][]byte{
		{0xFF},
		bytes.Repeat([]byte{0xFF}, 17),
		{0x00, 0x01, 0x00, 0x01, 0x7F},
		{0x00, 0x00, 0x00},
	} {
		frame := mustEncode(t, common.MsgTInstanceMessage, 9, []byte("after garbage"))
		stream := append(append([]byte{}, garbage...), frame...)

		cursor := NewCursor()
		invalid := 0

		outcome, msg, err := cursor.Decode(stream)
		for outcome == OutcomeInvalid {
			require.Error(t, err)
			require.True(t, IsFrameError(err))
			invalid++
			outcome, msg, err = cursor.Decode(nil)
		}

		require.Equal(t, OutcomeComplete, outcome)
		require.NoError(t, err)
		assert.Equal(t, len(garbage), invalid)
		assert.Equal(t, []byte("after garbage"), msg.Content)
		assert.Equal(t, 0, cursor.Buffered())
	}
}

// TestChecksumEnforcement flips every single content bit
func TestChecksumEnforcement(t *testing.T) {
	content := []byte("checksum")
	frame := mustEncode(t, common.MsgTInstanceMessage, 5, content)

	for bit := 0; bit < len(content)*8; bit++ {
		corrupted := append([]byte{}, frame...)
		corrupted[HeaderLen+bit/8] ^= 1 << (bit % 8)

		outcome, _, err := NewCursor().Decode(corrupted)
		require.Equal(t, OutcomeInvalid, outcome, "bit %d", bit)
		require.ErrorIs(t, err, ErrChecksumMismatch, "bit %d", bit)
	}
}

// TestHeaderValidation tests each header validation rule
func TestHeaderValidation(t *testing.T) {
	valid := mustEncode(t, common.MsgTAcknowledge, 0, []byte("x"))

	testCases := []struct {
		name    string
		mutate  func(frame []byte)
		wantErr error
	}{
		{
			name:    "wrong first magic byte",
			mutate:  func(f []byte) { f[0] = 0x10 },
			wantErr: ErrMagicMismatch,
		},
		{
			name:    "wrong last magic byte",
			mutate:  func(f []byte) { f[3] = 0x03 },
			wantErr: ErrMagicMismatch,
		},
		{
			name:    "protocol version too new",
			mutate:  func(f []byte) { binary.BigEndian.PutUint32(f[4:8], 2) },
			wantErr: ErrProtocolVersionTooNew,
		},
		{
			name:    "unknown message type",
			mutate:  func(f []byte) { f[8] = 5 },
			wantErr: ErrUnexpectedMessageType,
		},
		{
			name:    "declared length too large",
			mutate:  func(f []byte) { binary.BigEndian.PutUint64(f[11:19], common.MaxContentSize+1) },
			wantErr: ErrOversizeContent,
		},
		{
			name:    "checksum mismatch",
			mutate:  func(f []byte) { f[len(f)-1] ^= 0xFF },
			wantErr: ErrChecksumMismatch,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			frame := append([]byte{}, valid...)
			tc.mutate(frame)

			cursor := NewCursor()
			outcome, _, err := cursor.Decode(frame)
			require.Equal(t, OutcomeInvalid, outcome)
			require.ErrorIs(t, err, tc.wantErr)

			// exactly one byte was dropped
			assert.Equal(t, len(frame)-1, cursor.Buffered())
		})
	}
}

// TestOlderProtocolVersionAccepted tests that version 0 frames are still decoded
func TestOlderProtocolVersionAccepted(t *testing.T) {
	frame := mustEncode(t, common.MsgTInstanceMessage, 1, []byte("old"))
	binary.BigEndian.PutUint32(frame[4:8], 0)

	outcome, msg, err := NewCursor().Decode(frame)
	require.NoError(t, err)
	require.Equal(t, OutcomeComplete, outcome)
	assert.Equal(t, []byte("old"), msg.Content)
}

// TestEarlyRejection tests that invalid fields are detected before the frame is complete
func TestEarlyRejection(t *testing.T) {
	cursor := NewCursor()

	outcome, _, _ := cursor.Decode([]byte{0x00, 0x01})
	require.Equal(t, OutcomeIncomplete, outcome)

	outcome, _, err := cursor.Decode([]byte{0x07})
	require.Equal(t, OutcomeInvalid, outcome)
	require.ErrorIs(t, err, ErrMagicMismatch)
	assert.Equal(t, 2, cursor.Buffered())
}

// TestEmptyDecode tests decoding without any data
func TestEmptyDecode(t *testing.T) {
	outcome, _, err := NewCursor().Decode(nil)
	require.NoError(t, err)
	assert.Equal(t, OutcomeIncomplete, outcome)
	assert.Equal(t, "incomplete", outcome.String())
}

// TestDecodedContentIsCopied tests that decoded messages do not alias the cursor buffer
func TestDecodedContentIsCopied(t *testing.T) {
	frame := mustEncode(t, common.MsgTInstanceMessage, 1, []byte("stable"))
	cursor := NewCursor()

	_, msg, err := cursor.Decode(frame)
	require.NoError(t, err)

	// reuse the buffer for another frame
	_, _, err = cursor.Decode(mustEncode(t, common.MsgTInstanceMessage, 1, []byte("XXXXXX")))
	require.NoError(t, err)

	assert.Equal(t, []byte("stable"), msg.Content)
}
