package packet

import "strings"

// Type is the discriminator carried in every packet's "type" field.
// The vocabulary is fixed by the server; anything outside it is rejected
// by Decode.
type Type string

// Asynchronous events.
const (
	BounceEvent      Type = "bounce-event"
	DisconnectEvent  Type = "disconnect-event"
	EditMessageEvent Type = "edit-message-event"
	HelloEvent       Type = "hello-event"
	JoinEvent        Type = "join-event"
	LoginEvent       Type = "login-event"
	LogoutEvent      Type = "logout-event"
	NetworkEvent     Type = "network-event"
	NickEvent        Type = "nick-event"
	PartEvent        Type = "part-event"
	PingEvent        Type = "ping-event"
	PmInitiateEvent  Type = "pm-initiate-event"
	SendEvent        Type = "send-event"
	SnapshotEvent    Type = "snapshot-event"
)

// Session commands.
const (
	Auth      Type = "auth"
	AuthReply Type = "auth-reply"
	Ping      Type = "ping"
	PingReply Type = "ping-reply"
)

// Chat room commands.
const (
	GetMessage      Type = "get-message"
	GetMessageReply Type = "get-message-reply"
	Log             Type = "log"
	LogReply        Type = "log-reply"
	Nick            Type = "nick"
	NickReply       Type = "nick-reply"
	PmInitiate      Type = "pm-initiate"
	PmInitiateReply Type = "pm-initiate-reply"
	Send            Type = "send"
	SendReply       Type = "send-reply"
	Who             Type = "who"
	WhoReply        Type = "who-reply"
)

// Account commands.
const (
	ChangeEmail                  Type = "change-email"
	ChangeEmailReply             Type = "change-email-reply"
	ChangeName                   Type = "change-name"
	ChangeNameReply              Type = "change-name-reply"
	ChangePassword               Type = "change-password"
	ChangePasswordReply          Type = "change-password-reply"
	Login                        Type = "login"
	LoginReply                   Type = "login-reply"
	Logout                       Type = "logout"
	LogoutReply                  Type = "logout-reply"
	RegisterAccount              Type = "register-account"
	RegisterAccountReply         Type = "register-account-reply"
	ResendVerificationEmail      Type = "resend-verification-email"
	ResendVerificationEmailReply Type = "resend-verification-email-reply"
	ResetPassword                Type = "reset-password"
	ResetPasswordReply           Type = "reset-password-reply"
)

// Room host and staff commands. Their payloads are not modelled and are
// carried as raw JSON.
const (
	Ban                        Type = "ban"
	BanReply                   Type = "ban-reply"
	EditMessage                Type = "edit-message"
	EditMessageReply           Type = "edit-message-reply"
	GrantAccess                Type = "grant-access"
	GrantAccessReply           Type = "grant-access-reply"
	GrantManager               Type = "grant-manager"
	GrantManagerReply          Type = "grant-manager-reply"
	RevokeAccess               Type = "revoke-access"
	RevokeAccessReply          Type = "revoke-access-reply"
	RevokeManager              Type = "revoke-manager"
	RevokeManagerReply         Type = "revoke-manager-reply"
	Unban                      Type = "unban"
	UnbanReply                 Type = "unban-reply"
	StaffCreateRoom            Type = "staff-create-room"
	StaffCreateRoomReply       Type = "staff-create-room-reply"
	StaffEnrollOtp             Type = "staff-enroll-otp"
	StaffEnrollOtpReply        Type = "staff-enroll-otp-reply"
	StaffGrantManager          Type = "staff-grant-manager"
	StaffGrantManagerReply     Type = "staff-grant-manager-reply"
	StaffInvade                Type = "staff-invade"
	StaffInvadeReply           Type = "staff-invade-reply"
	StaffLockRoom              Type = "staff-lock-room"
	StaffLockRoomReply         Type = "staff-lock-room-reply"
	StaffRevokeAccess          Type = "staff-revoke-access"
	StaffRevokeAccessReply     Type = "staff-revoke-access-reply"
	StaffValidateOtp           Type = "staff-validate-otp"
	StaffValidateOtpReply      Type = "staff-validate-otp-reply"
	UnlockStaffCapability      Type = "unlock-staff-capability"
	UnlockStaffCapabilityReply Type = "unlock-staff-capability-reply"
)

// Kind groups packet types by who sends them and whether they are
// correlated.
type Kind int

const (
	KindUnknown Kind = iota // not part of the vocabulary
	KindEvent               // server-initiated, no id
	KindCommand             // client-initiated, carries an id
	KindReply               // server response to exactly one command
)

func (k Kind) String() string {
	switch k {
	case KindEvent:
		return "event"
	case KindCommand:
		return "command"
	case KindReply:
		return "reply"
	default:
		return "unknown"
	}
}

var commands = []Type{
	Auth, Ping,
	GetMessage, Log, Nick, PmInitiate, Send, Who,
	ChangeEmail, ChangeName, ChangePassword, Login, Logout,
	RegisterAccount, ResendVerificationEmail, ResetPassword,
	Ban, EditMessage, GrantAccess, GrantManager, RevokeAccess,
	RevokeManager, Unban,
	StaffCreateRoom, StaffEnrollOtp, StaffGrantManager, StaffInvade,
	StaffLockRoom, StaffRevokeAccess, StaffValidateOtp,
	UnlockStaffCapability,
}

var events = []Type{
	BounceEvent, DisconnectEvent, EditMessageEvent, HelloEvent, JoinEvent,
	LoginEvent, LogoutEvent, NetworkEvent, NickEvent, PartEvent, PingEvent,
	PmInitiateEvent, SendEvent, SnapshotEvent,
}

var kinds = func() map[Type]Kind {
	m := make(map[Type]Kind, len(events)+2*len(commands))
	for _, t := range events {
		m[t] = KindEvent
	}
	for _, t := range commands {
		m[t] = KindCommand
		m[t+"-reply"] = KindReply
	}
	return m
}()

// Kind reports which part of the vocabulary t belongs to.
func (t Type) Kind() Kind {
	return kinds[t]
}

// Known reports whether t is part of the vocabulary.
func (t Type) Known() bool {
	return t.Kind() != KindUnknown
}

// Reply returns the reply type for a command type, or "" when t is not a
// command.
func (t Type) Reply() Type {
	if t.Kind() != KindCommand {
		return ""
	}
	return t + "-reply"
}

// Command returns the command type a reply answers, or "" when t is not a
// reply.
func (t Type) Command() Type {
	if t.Kind() != KindReply {
		return ""
	}
	return Type(strings.TrimSuffix(string(t), "-reply"))
}

func (t Type) String() string {
	return string(t)
}
