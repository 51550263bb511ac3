/*
Package domain contains the core domain models of the headless chat SDK.

It defines the conversation state, the messages exchanged with the chat backends,
the request/response envelopes consumed by chat clients and the analytics payload.
This package is kept pure and free of external dependencies like I/O or persistence,
following Hexagonal Architecture principles.

# Key Entities

  - Message: A single utterance from the user, the bot or a human agent.
  - ConversationState: Messages, notes and the loading/sending flags of a conversation.
  - State: The aggregate observed by consumers (Conversation + Meta).
  - MessageRequest / MessageResponse: The uniform payload shapes of every chat client.
  - StreamEvent: One ordered event (start, token, end) of a streamed response.
*/
package domain
