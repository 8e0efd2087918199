package packet

// Command is a typed command payload. Each command knows the packet type
// it is sent as; its reply type is PacketType().Reply().
type Command interface {
	PacketType() Type
}

// AuthOption is a method of authenticating with a private room.
type AuthOption string

const AuthPasscode AuthOption = "passcode"

// SessionView describes a session and its identity.
type SessionView struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	ServerID          string `json:"server_id"`
	ServerEra         string `json:"server_era"`
	SessionID         string `json:"session_id"`
	IsStaff           bool   `json:"is_staff,omitempty"`
	IsManager         bool   `json:"is_manager,omitempty"`
	ClientAddress     string `json:"client_address,omitempty"`
	RealClientAddress string `json:"real_client_address,omitempty"`
}

// PersonalAccountView is the account information a logged-in client sees
// about itself.
type PersonalAccountView struct {
	ID    Snowflake `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email"`
}

// Message is a single chat message.
type Message struct {
	ID              Snowflake   `json:"id"`
	Parent          *Snowflake  `json:"parent,omitempty"`
	PreviousEditID  *Snowflake  `json:"previous_edit_id,omitempty"`
	Time            Time        `json:"time"`
	Sender          SessionView `json:"sender"`
	Content         string      `json:"content"`
	EncryptionKeyID string      `json:"encryption_key_id,omitempty"`
	Edited          *Time       `json:"edited,omitempty"`
	Deleted         *Time       `json:"deleted,omitempty"`
	Truncated       bool        `json:"truncated,omitempty"`
}

// Events

type BounceEventData struct {
	Reason      string       `json:"reason,omitempty"`
	AuthOptions []AuthOption `json:"auth_options,omitempty"`
	AgentID     string       `json:"agent_id,omitempty"`
	IP          string       `json:"ip,omitempty"`
}

// Offers reports whether the bounce allows authenticating with opt.
func (b *BounceEventData) Offers(opt AuthOption) bool {
	for _, o := range b.AuthOptions {
		if o == opt {
			return true
		}
	}
	return false
}

type DisconnectEventData struct {
	Reason string `json:"reason"`
}

type EditMessageEventData struct {
	EditID Snowflake `json:"edit_id"`
	Message
}

type HelloEventData struct {
	ID                   string               `json:"id"`
	Account              *PersonalAccountView `json:"account,omitempty"`
	Session              SessionView          `json:"session"`
	AccountHasAccess     bool                 `json:"account_has_access,omitempty"`
	AccountEmailVerified bool                 `json:"account_email_verified,omitempty"`
	RoomIsPrivate        bool                 `json:"room_is_private"`
	Version              string               `json:"version"`
}

type JoinEventData struct {
	SessionView
}

type LoginEventData struct {
	AccountID Snowflake `json:"account_id"`
}

type LogoutEventData struct{}

// NetworkEventData reports a server-side network change. The only type
// the server currently sends is "partition".
type NetworkEventData struct {
	Type      string `json:"type"`
	ServerID  string `json:"server_id"`
	ServerEra string `json:"server_era"`
}

type NickEventData struct {
	SessionID string `json:"session_id"`
	ID        string `json:"id"`
	From      string `json:"from"`
	To        string `json:"to"`
}

type PartEventData struct {
	SessionView
}

// PingEventData is the server's keepalive probe. Time is echoed back in
// the ping-reply; Next is when the server plans to ping again.
type PingEventData struct {
	Time Time `json:"time"`
	Next Time `json:"next"`
}

type PmInitiateEventData struct {
	From     string    `json:"from"`
	FromNick string    `json:"from_nick"`
	FromRoom string    `json:"from_room"`
	PmID     Snowflake `json:"pm_id"`
}

type SendEventData struct {
	Message
}

type SnapshotEventData struct {
	Identity     string        `json:"identity"`
	SessionID    string        `json:"session_id"`
	Version      string        `json:"version"`
	Listing      []SessionView `json:"listing"`
	Log          []Message     `json:"log"`
	Nick         string        `json:"nick,omitempty"`
	PmWithNick   string        `json:"pm_with_nick,omitempty"`
	PmWithUserID string        `json:"pm_with_user_id,omitempty"`
}

// Session commands

type AuthCommand struct {
	Type     AuthOption `json:"type"`
	Passcode string     `json:"passcode,omitempty"`
}

type AuthReplyData struct {
	Success bool   `json:"success"`
	Reason  string `json:"reason,omitempty"`
}

type PingCommand struct {
	Time Time `json:"time"`
}

type PingReplyData struct {
	Time *Time `json:"time,omitempty"`
}

// Room commands

type GetMessageCommand struct {
	ID Snowflake `json:"id"`
}

type GetMessageReplyData struct {
	Message
}

type LogCommand struct {
	N      int        `json:"n"`
	Before *Snowflake `json:"before,omitempty"`
}

type LogReplyData struct {
	Log    []Message  `json:"log"`
	Before *Snowflake `json:"before,omitempty"`
}

type NickCommand struct {
	Name string `json:"name"`
}

type NickReplyData struct {
	SessionID string `json:"session_id"`
	ID        string `json:"id"`
	From      string `json:"from"`
	To        string `json:"to"`
}

type PmInitiateCommand struct {
	UserID string `json:"user_id"`
}

type PmInitiateReplyData struct {
	PmID   Snowflake `json:"pm_id"`
	ToNick string    `json:"to_nick"`
}

type SendCommand struct {
	Content string     `json:"content"`
	Parent  *Snowflake `json:"parent,omitempty"`
}

type SendReplyData struct {
	Message
}

type WhoCommand struct{}

type WhoReplyData struct {
	Listing []SessionView `json:"listing"`
}

// Account commands

type ChangeEmailCommand struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type ChangeEmailReplyData struct {
	Success            bool   `json:"success"`
	Reason             string `json:"reason,omitempty"`
	VerificationNeeded bool   `json:"verification_needed"`
}

type ChangeNameCommand struct {
	Name string `json:"name"`
}

type ChangeNameReplyData struct {
	Name string `json:"name"`
}

type ChangePasswordCommand struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

type ChangePasswordReplyData struct{}

type LoginCommand struct {
	Namespace string `json:"namespace"`
	ID        string `json:"id"`
	Password  string `json:"password"`
}

type LoginReplyData struct {
	Success   bool       `json:"success"`
	Reason    string     `json:"reason,omitempty"`
	AccountID *Snowflake `json:"account_id,omitempty"`
}

type LogoutCommand struct{}

type LogoutReplyData struct{}

type RegisterAccountCommand struct {
	Namespace string `json:"namespace"`
	ID        string `json:"id"`
	Password  string `json:"password"`
}

type RegisterAccountReplyData struct {
	Success   bool       `json:"success"`
	Reason    string     `json:"reason,omitempty"`
	AccountID *Snowflake `json:"account_id,omitempty"`
}

type ResendVerificationEmailCommand struct{}

type ResendVerificationEmailReplyData struct{}

type ResetPasswordCommand struct {
	Namespace string `json:"namespace"`
	ID        string `json:"id"`
}

type ResetPasswordReplyData struct{}

func (AuthCommand) PacketType() Type                    { return Auth }
func (PingCommand) PacketType() Type                    { return Ping }
func (GetMessageCommand) PacketType() Type              { return GetMessage }
func (LogCommand) PacketType() Type                     { return Log }
func (NickCommand) PacketType() Type                    { return Nick }
func (PmInitiateCommand) PacketType() Type              { return PmInitiate }
func (SendCommand) PacketType() Type                    { return Send }
func (WhoCommand) PacketType() Type                     { return Who }
func (ChangeEmailCommand) PacketType() Type             { return ChangeEmail }
func (ChangeNameCommand) PacketType() Type              { return ChangeName }
func (ChangePasswordCommand) PacketType() Type          { return ChangePassword }
func (LoginCommand) PacketType() Type                   { return Login }
func (LogoutCommand) PacketType() Type                  { return Logout }
func (RegisterAccountCommand) PacketType() Type         { return RegisterAccount }
func (ResendVerificationEmailCommand) PacketType() Type { return ResendVerificationEmail }
func (ResetPasswordCommand) PacketType() Type           { return ResetPassword }

var payloads = map[Type]func() any{
	BounceEvent:      func() any { return new(BounceEventData) },
	DisconnectEvent:  func() any { return new(DisconnectEventData) },
	EditMessageEvent: func() any { return new(EditMessageEventData) },
	HelloEvent:       func() any { return new(HelloEventData) },
	JoinEvent:        func() any { return new(JoinEventData) },
	LoginEvent:       func() any { return new(LoginEventData) },
	LogoutEvent:      func() any { return new(LogoutEventData) },
	NetworkEvent:     func() any { return new(NetworkEventData) },
	NickEvent:        func() any { return new(NickEventData) },
	PartEvent:        func() any { return new(PartEventData) },
	PingEvent:        func() any { return new(PingEventData) },
	PmInitiateEvent:  func() any { return new(PmInitiateEventData) },
	SendEvent:        func() any { return new(SendEventData) },
	SnapshotEvent:    func() any { return new(SnapshotEventData) },

	Auth:      func() any { return new(AuthCommand) },
	AuthReply: func() any { return new(AuthReplyData) },
	Ping:      func() any { return new(PingCommand) },
	PingReply: func() any { return new(PingReplyData) },

	GetMessage:      func() any { return new(GetMessageCommand) },
	GetMessageReply: func() any { return new(GetMessageReplyData) },
	Log:             func() any { return new(LogCommand) },
	LogReply:        func() any { return new(LogReplyData) },
	Nick:            func() any { return new(NickCommand) },
	NickReply:       func() any { return new(NickReplyData) },
	PmInitiate:      func() any { return new(PmInitiateCommand) },
	PmInitiateReply: func() any { return new(PmInitiateReplyData) },
	Send:            func() any { return new(SendCommand) },
	SendReply:       func() any { return new(SendReplyData) },
	Who:             func() any { return new(WhoCommand) },
	WhoReply:        func() any { return new(WhoReplyData) },

	ChangeEmail:                  func() any { return new(ChangeEmailCommand) },
	ChangeEmailReply:             func() any { return new(ChangeEmailReplyData) },
	ChangeName:                   func() any { return new(ChangeNameCommand) },
	ChangeNameReply:              func() any { return new(ChangeNameReplyData) },
	ChangePassword:               func() any { return new(ChangePasswordCommand) },
	ChangePasswordReply:          func() any { return new(ChangePasswordReplyData) },
	Login:                        func() any { return new(LoginCommand) },
	LoginReply:                   func() any { return new(LoginReplyData) },
	Logout:                       func() any { return new(LogoutCommand) },
	LogoutReply:                  func() any { return new(LogoutReplyData) },
	RegisterAccount:              func() any { return new(RegisterAccountCommand) },
	RegisterAccountReply:         func() any { return new(RegisterAccountReplyData) },
	ResendVerificationEmail:      func() any { return new(ResendVerificationEmailCommand) },
	ResendVerificationEmailReply: func() any { return new(ResendVerificationEmailReplyData) },
	ResetPassword:                func() any { return new(ResetPasswordCommand) },
	ResetPasswordReply:           func() any { return new(ResetPasswordReplyData) },
}
