package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"sync"
	"time"

	"finsight/internal/crypto"
	"finsight/internal/domain"
	"finsight/internal/vault"

	"go.opentelemetry.io/otel/trace"
)

// ProfileRecordStore is the persistence surface for encrypted profile
// records.
type ProfileRecordStore interface {
	GetByHash(ctx context.Context, profileHash string) (*domain.EncryptedProfile, error)
	Upsert(ctx context.Context, rec *domain.EncryptedProfile) error
	MarkDeleted(ctx context.Context, profileHash string) error
	ListByKeyVersion(ctx context.Context, keyVersion int, limit int) ([]string, error)
}

// ProfileMerger decides what new durable facts a conversation turn
// adds. The contract is additive: no new information means the
// existing profile comes back unchanged.
type ProfileMerger interface {
	Merge(ctx context.Context, existing string, turn domain.ConversationTurn) (string, error)
}

// ProfileService owns the encrypted natural-language profile per user:
// decrypt on read, additive LLM-assisted merge on update, re-encrypt
// with a fresh iv on every write.
type ProfileService struct {
	tracer trace.Tracer
	store  ProfileRecordStore
	cipher *crypto.Cipher
	merger ProfileMerger
	pepper string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewProfileService(
	tracer trace.Tracer,
	store ProfileRecordStore,
	cipher *crypto.Cipher,
	merger ProfileMerger,
	pepper string,
) *ProfileService {
	return &ProfileService{
		tracer: tracer,
		store:  store,
		cipher: cipher,
		merger: merger,
		pepper: pepper,
		locks:  make(map[string]*sync.Mutex),
	}
}

// ProfileHash derives the stable storage identifier for a user. It is
// independent of email and never reversible to the user id.
func (s *ProfileService) ProfileHash(userID string) string {
	sum := sha256.Sum256([]byte(s.pepper + ":" + userID))
	return hex.EncodeToString(sum[:])
}

// userLock serializes profile updates per user so concurrent turns
// never interleave a partial merge.
func (s *ProfileService) userLock(profileHash string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[profileHash]
	if !ok {
		l = &sync.Mutex{}
		s.locks[profileHash] = l
	}
	return l
}

// GetOrCreateProfile returns the decrypted profile text, creating an
// empty encrypted record on first touch. Decryption failures surface
// as the generic crypto.ErrDecrypt only.
func (s *ProfileService) GetOrCreateProfile(ctx context.Context, userID string) (string, error) {
	ctx, span := s.tracer.Start(ctx, "profile-service.get-or-create")
	defer span.End()

	hash := s.ProfileHash(userID)
	rec, err := s.store.GetByHash(ctx, hash)
	if err != nil {
		return "", fmt.Errorf("load profile record: %w", err)
	}
	if rec == nil {
		empty, err := s.cipher.Encrypt(hash, nil)
		if err != nil {
			return "", fmt.Errorf("initialize profile record: %w", err)
		}
		if err := s.store.Upsert(ctx, empty); err != nil {
			return "", fmt.Errorf("initialize profile record: %w", err)
		}
		return "", nil
	}

	plaintext, err := s.cipher.Decrypt(rec)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

// UpdateProfileFromConversation merges one turn into the stored
// profile. Best-effort by contract: extraction failures keep the old
// profile and are never surfaced to the caller. The merger is an
// outbound LLM call, so the turn and the decrypted profile cross it in
// marker form only; the session vault v carries the markers minted for
// the answer prompt.
func (s *ProfileService) UpdateProfileFromConversation(ctx context.Context, userID string, turn domain.ConversationTurn, v *vault.Vault) {
	ctx, span := s.tracer.Start(ctx, "profile-service.update-from-conversation")
	defer span.End()

	if v == nil {
		v = vault.New()
	}

	hash := s.ProfileHash(userID)
	lock := s.userLock(hash)
	lock.Lock()
	defer lock.Unlock()

	existing := ""
	rec, err := s.store.GetByHash(ctx, hash)
	if err != nil {
		log.Printf("profile update: load record: %v", err)
		return
	}
	if rec != nil {
		plaintext, err := s.cipher.Decrypt(rec)
		if err != nil {
			log.Printf("profile update: %v", err)
			return
		}
		existing = string(plaintext)
	}

	maskedExisting := v.Retokenize(vault.TokenizeText(v, existing))
	maskedTurn := turn
	maskedTurn.Question = v.Retokenize(vault.TokenizeText(v, turn.Question))
	maskedTurn.Answer = v.Retokenize(vault.TokenizeText(v, turn.Answer))

	merged, err := s.merger.Merge(ctx, maskedExisting, maskedTurn)
	if err != nil {
		log.Printf("profile extraction failed, keeping existing profile: %v", err)
		return
	}
	// Additive guard: a merge can only grow or keep the profile. An
	// empty result against a non-empty profile is a regression, not an
	// update.
	if merged == maskedExisting || (merged == "" && existing != "") {
		return
	}

	// The profile is stored in plaintext under encryption; markers in
	// the merged text resolve back to real values before the write.
	plain := v.Detokenize(merged)
	if plain == existing {
		return
	}

	newRec, err := s.cipher.Encrypt(hash, []byte(plain))
	if err != nil {
		log.Printf("profile update: encrypt: %v", err)
		return
	}
	if err := s.store.Upsert(ctx, newRec); err != nil {
		log.Printf("profile update: persist: %v", err)
	}
}

// RotateKey re-encrypts one user's record from the old cipher to the
// new one. The new record is written only after a successful
// decrypt+re-encrypt, so a failed rotation changes nothing.
func (s *ProfileService) RotateKey(ctx context.Context, userID string, oldCipher, newCipher *crypto.Cipher) error {
	ctx, span := s.tracer.Start(ctx, "profile-service.rotate-key")
	defer span.End()

	hash := s.ProfileHash(userID)
	rec, err := s.rotateRecord(ctx, hash, oldCipher, newCipher)
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("no profile record for user")
	}
	return nil
}

// rotateSweepLimit bounds one RotateAllKeys pass.
const rotateSweepLimit = 1000

// RotateAllKeys sweeps active records still stored under the old
// cipher's key version and re-encrypts each with the new cipher.
// Records that fail to rotate stay on the old version and are counted;
// the sweep keeps going.
func (s *ProfileService) RotateAllKeys(ctx context.Context, oldCipher, newCipher *crypto.Cipher) (rotated, failed int, err error) {
	ctx, span := s.tracer.Start(ctx, "profile-service.rotate-all-keys")
	defer span.End()

	hashes, err := s.store.ListByKeyVersion(ctx, oldCipher.Version(), rotateSweepLimit)
	if err != nil {
		return 0, 0, fmt.Errorf("list records for rotation: %w", err)
	}
	for _, hash := range hashes {
		rec, err := s.rotateRecord(ctx, hash, oldCipher, newCipher)
		if err != nil || rec == nil {
			log.Printf("rotate profile record: %v", err)
			failed++
			continue
		}
		rotated++
	}
	return rotated, failed, nil
}

func (s *ProfileService) rotateRecord(ctx context.Context, hash string, oldCipher, newCipher *crypto.Cipher) (*domain.EncryptedProfile, error) {
	lock := s.userLock(hash)
	lock.Lock()
	defer lock.Unlock()

	rec, err := s.store.GetByHash(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("load profile record: %w", err)
	}
	if rec == nil {
		return nil, nil
	}

	rotated, err := crypto.Rotate(oldCipher, newCipher, rec)
	if err != nil {
		return nil, err
	}
	rotated.UpdatedAt = time.Now().UTC()
	if err := s.store.Upsert(ctx, rotated); err != nil {
		return nil, fmt.Errorf("store rotated record: %w", err)
	}
	return rotated, nil
}

// DeleteProfile logically deletes a user's profile record.
func (s *ProfileService) DeleteProfile(ctx context.Context, userID string) error {
	ctx, span := s.tracer.Start(ctx, "profile-service.delete")
	defer span.End()

	return s.store.MarkDeleted(ctx, s.ProfileHash(userID))
}
